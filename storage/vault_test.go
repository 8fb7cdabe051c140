package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/content-publisher/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves the KV v2 endpoints used by VaultPublisher for one mount.
type fakeVault struct {
	mu      sync.Mutex
	mount   string
	secrets map[string]map[string]interface{}
	sealed  bool
}

func newFakeVault(t *testing.T, mount string) (*fakeVault, *httptest.Server) {
	f := &fakeVault{mount: mount, secrets: make(map[string]map[string]interface{})}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := strings.TrimPrefix(r.URL.Path, "/v1/")
	notFound := map[string]interface{}{"errors": []string{}}

	if p == "sys/health" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"initialized": true, "sealed": f.sealed})
		return
	}

	if key, ok := strings.CutPrefix(p, f.mount+"/data/"); ok {
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			var req struct {
				Data map[string]interface{} `json:"data"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []string{err.Error()}})
				return
			}
			f.secrets[key] = req.Data
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"version": 1}})
		case http.MethodGet:
			data, found := f.secrets[key]
			if !found {
				writeJSON(w, http.StatusNotFound, notFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"data": map[string]interface{}{"data": data, "metadata": map[string]interface{}{"version": 1}},
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if key, ok := strings.CutPrefix(strings.TrimSuffix(p, "/"), f.mount+"/metadata"); ok {
		key = strings.TrimPrefix(key, "/")
		switch {
		case r.Method == http.MethodDelete:
			delete(f.secrets, key)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == "LIST" || (r.Method == http.MethodGet && r.URL.Query().Get("list") == "true"):
			keys := f.children(key)
			if len(keys) == 0 {
				writeJSON(w, http.StatusNotFound, notFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"keys": keys}})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	writeJSON(w, http.StatusNotFound, notFound)
}

// children lists the immediate children of dir the way Vault does,
// directories with a trailing slash.
func (f *fakeVault) children(dir string) []string {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := map[string]bool{}
	var keys []string
	for name := range f.secrets {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		if child, _, isDir := strings.Cut(rest, "/"); isDir {
			rest = child + "/"
		}
		if !seen[rest] {
			seen[rest] = true
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys
}

func newTestVaultPublisher(t *testing.T, prefix string) (*VaultPublisher, *fakeVault) {
	t.Helper()
	fake, srv := newFakeVault(t, "secret")
	p, err := NewVaultPublisher(VaultOptions{
		Address: srv.URL,
		Mount:   "secret/",
		Prefix:  prefix,
		Token:   "test-token",
	}, testLogger())
	require.NoError(t, err)
	return p, fake
}

func TestVaultPublisher_Scenario(t *testing.T) {
	ctx := context.Background()
	p, fake := newTestVaultPublisher(t, "/site/")

	files, err := p.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, interfaces.PutBytes(ctx, p, "hello.txt", []byte("Hello world"), "text/plain"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "post", []byte("<html></html>"), "text/html"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "docs/a/readme", []byte{0xff, 0x00}, "text/markdown"))

	assert.Contains(t, fake.secrets, "site/post.html")
	assert.Equal(t, "/wA=", fake.secrets["site/docs/a/readme"]["body"])

	files, err = p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a/readme", "hello.txt", "post.html"}, files)

	obj, err := p.Get(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, &interfaces.Object{Body: []byte("Hello world"), ContentType: "text/plain"}, obj)

	obj, err = p.Get(ctx, "docs/a/readme")
	require.NoError(t, err)
	assert.Equal(t, &interfaces.Object{Body: []byte{0xff, 0x00}, ContentType: "text/markdown"}, obj)

	for _, name := range []string{"post", "post.html"} {
		obj, err := p.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "text/html", obj.ContentType)
		assert.True(t, p.Exists(ctx, name))
	}

	require.NoError(t, p.Commit(ctx, "publish"))
	require.NoError(t, p.Rollback(ctx))
	assert.True(t, p.Available(ctx))

	fake.sealed = true
	assert.False(t, p.Available(ctx))
}

func TestVaultPublisher_Delete(t *testing.T) {
	ctx := context.Background()
	p, fake := newTestVaultPublisher(t, "")

	require.NoError(t, interfaces.PutBytes(ctx, p, "post", []byte("<p>x</p>"), "text/html"))

	assert.ErrorIs(t, p.Delete(ctx, "post", "text/plain"), interfaces.ErrNotFound)
	require.NoError(t, p.Delete(ctx, "post", "text/html"))
	assert.Empty(t, fake.secrets)

	assert.False(t, p.Exists(ctx, "post"))
	_, err := p.Get(ctx, "post")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, "post", "text/html"), interfaces.ErrNotFound)
}

func TestVaultPublisher_Identity(t *testing.T) {
	p, err := NewVaultPublisher(VaultOptions{
		Address: "https://vault.local:8200",
		Mount:   "kv",
		Prefix:  "site",
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "vault-kv-site", p.Name())
	assert.Equal(t, "vault://vault.local:8200/kv/site?scheme=https", p.LocationURI())
	assert.Equal(t, "kv/data/site/a/b.html", p.secretPath("data", "a/b.html"))
	assert.Equal(t, "kv/metadata/site", p.secretPath("metadata", ""))
}
