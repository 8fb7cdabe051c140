/*
Package httpserver serves a Publisher over HTTP.

The server exposes the object API described in package api together with
the usual operational endpoints:

	/livez     process is alive
	/readyz    not draining and the backend answers its probe
	/drain     mark not ready ahead of shutdown
	/undrain   mark ready again
	/debug     pprof, when EnablePprof is set

Publisher operations are counted and timed by the metrics server, which
listens separately on MetricsAddr.

# Writes

PUT, DELETE, commit and rollback requests are serialized through a FIFO
mutex, so concurrent publishers never interleave a put with another
caller's commit. When PublisherKeys is configured every write must carry a
valid signature (see package cryptoutils); reads stay anonymous.

# Usage

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:8080",
		MetricsAddr:              "127.0.0.1:8090",
		Log:                      logger,
		GracefulShutdownDuration: 30 * time.Second,
	}

	srv, err := httpserver.New(cfg, publisher)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
