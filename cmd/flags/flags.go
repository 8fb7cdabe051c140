// Package flags holds the command-line flags shared by the publisher
// commands and the helpers that turn them into a logger, a publisher and an
// HTTP server configuration.
package flags

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/content-publisher/common"
	"github.com/ruteri/content-publisher/config"
	"github.com/ruteri/content-publisher/httpserver"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/storage"
	"github.com/urfave/cli/v2"
)

var ErrNoBackend = errors.New("one of --config or --location is required")

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// Publisher builds the publisher selected by --config or --location.
func Publisher(cCtx *cli.Context, logger *slog.Logger) (interfaces.Publisher, error) {
	factory := storage.NewPublisherFactory(logger)

	if path := cCtx.String(ConfigFlag.Name); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		return factory.PublisherFor(cfg)
	}

	if location := cCtx.String(LocationFlag.Name); location != "" {
		return factory.PublisherForLocation(location)
	}

	return nil, ErrNoBackend
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) (*httpserver.HTTPServerConfig, error) {
	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		MaxBodySize:              cCtx.Int64(MaxBodySizeFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	if path := cCtx.String(PublisherKeysFlag.Name); path != "" {
		keys, err := httpserver.LoadPublisherKeysFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load publisher keys: %w", err)
		}
		logger.Info("Signed writes enabled", slog.Int("publishers", len(keys)))
		cfg.PublisherKeys = keys
	}

	if cCtx.Bool(SelfSignedTLSFlag.Name) {
		tlsConfig, err := selfSignedTLS()
		if err != nil {
			return nil, err
		}
		cfg.TLSConfig = tlsConfig
	}

	return cfg, nil
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	EnvVars: []string{"PUBLISHER_CONFIG"},
	Usage:   "YAML backend configuration file",
}
var LocationFlag = &cli.StringFlag{
	Name:    "location",
	Aliases: []string{"l"},
	EnvVars: []string{"PUBLISHER_LOCATION"},
	Usage:   "backend location URI, e.g. file:///var/www or git:///srv/site?push=true",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PublisherKeysFlag = &cli.StringFlag{
	Name:  "publisher-keys",
	Usage: "JSON file with publisher public keys; when set every write must be signed",
}
var MaxBodySizeFlag = &cli.Int64Flag{
	Name:  "max-body-size",
	Value: httpserver.DefaultMaxBodySize,
	Usage: "maximum size in bytes of an uploaded object",
}
var SelfSignedTLSFlag = &cli.BoolFlag{
	Name:  "tls-self-signed",
	Value: false,
	Usage: "serve https with a throwaway self-signed certificate",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to stay unready before shutting down",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	ConfigFlag,
	LocationFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	MetricsAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	PublisherKeysFlag,
	MaxBodySizeFlag,
	SelfSignedTLSFlag,
}
