package clients_test

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/content-publisher/api/clients"
	"github.com/ruteri/content-publisher/cryptoutils"
	"github.com/ruteri/content-publisher/httpserver"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, keys map[string]*ecdsa.PublicKey) (*httptest.Server, *storage.FilePublisher) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := storage.NewFilePublisher(t.TempDir(), storage.FileOptions{}, log)
	require.NoError(t, err)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{Log: log, PublisherKeys: keys}, backend)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, backend
}

func TestPublisherClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ts, backend := startServer(t, nil)
	client := clients.NewPublisherClient(ts.URL + "/")

	var _ interfaces.Publisher = client
	assert.Equal(t, ts.URL, client.LocationURI())
	assert.Contains(t, client.Name(), "remote-127.0.0.1")

	files, err := client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, interfaces.PutBytes(ctx, client, "posts/hello world", []byte("<p>hi</p>"), "text/html"))
	require.NoError(t, interfaces.PutBytes(ctx, client, "data/ü.json", []byte(`{}`), ""))

	assert.True(t, backend.Exists(ctx, "posts/hello world.html"))

	obj, err := client.Get(ctx, "posts/hello world")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", string(obj.Body))
	assert.Equal(t, "text/html", obj.ContentType)

	obj, err = client.Get(ctx, "data/ü.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", obj.ContentType)

	assert.True(t, client.Exists(ctx, "posts/hello world"))
	assert.False(t, client.Exists(ctx, "posts/missing"))

	files, err = client.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/ü.json", "posts/hello world.html"}, files)

	require.NoError(t, client.Commit(ctx, "first\nsecond line"))
	require.NoError(t, client.Rollback(ctx))

	assert.ErrorIs(t, client.Delete(ctx, "posts/hello world", "text/plain"), interfaces.ErrNotFound)
	require.NoError(t, client.Delete(ctx, "posts/hello world", "text/html"))

	_, err = client.Get(ctx, "posts/hello world")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = client.Get(ctx, "../escape")
	assert.ErrorIs(t, err, interfaces.ErrInvalidPath)

	assert.True(t, client.Available(ctx))
}

func TestPublisherClient_Signed(t *testing.T) {
	ctx := context.Background()

	privPEM, pubPEM, err := cryptoutils.GenerateKeyPair()
	require.NoError(t, err)
	priv, err := cryptoutils.ParsePrivateKey(privPEM)
	require.NoError(t, err)
	pub, err := cryptoutils.ParsePublicKey(pubPEM)
	require.NoError(t, err)

	ts, _ := startServer(t, map[string]*ecdsa.PublicKey{"alice": pub})

	anonymous := clients.NewPublisherClient(ts.URL)
	err = interfaces.PutBytes(ctx, anonymous, "a.txt", []byte("a"), "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	signed := clients.NewPublisherClient(ts.URL, clients.WithSigner("alice", priv))
	require.NoError(t, interfaces.PutBytes(ctx, signed, "a.txt", []byte("a"), "text/plain"))
	require.NoError(t, signed.Delete(ctx, "a.txt", "text/plain"))
	require.NoError(t, signed.Commit(ctx, "signed commit"))

	// reads need no signature
	_, err = anonymous.Get(ctx, "a.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestPublisherClient_Unavailable(t *testing.T) {
	ctx := context.Background()
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	client := clients.NewPublisherClient(url)
	assert.False(t, client.Available(ctx))

	_, err := client.List(ctx)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}
