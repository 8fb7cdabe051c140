package httpserver

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/ruteri/content-publisher/cryptoutils"
)

// Authenticator admits write requests signed by a known publisher key.
type Authenticator struct {
	keys        map[string]*ecdsa.PublicKey
	maxBodySize int64
	log         *slog.Logger
}

// NewAuthenticator creates an authenticator for the given publisher IDs.
// Bodies larger than maxBodySize are rejected before verification.
func NewAuthenticator(keys map[string]*ecdsa.PublicKey, maxBodySize int64, log *slog.Logger) *Authenticator {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Authenticator{keys: keys, maxBodySize: maxBodySize, log: log}
}

// LoadPublisherKeys reads publisher public keys from a JSON document:
//
//	{"publishers": [{"id": "alice", "pubkey": "-----BEGIN PUBLIC KEY-----..."}]}
func LoadPublisherKeys(r io.Reader) (map[string]*ecdsa.PublicKey, error) {
	var data struct {
		Publishers []struct {
			ID     string `json:"id"`
			PubKey string `json:"pubkey"`
		} `json:"publishers"`
	}

	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode publisher keys JSON: %w", err)
	}

	result := make(map[string]*ecdsa.PublicKey, len(data.Publishers))
	for _, p := range data.Publishers {
		if p.ID == "" {
			return nil, errors.New("publisher entry without id")
		}
		key, err := cryptoutils.ParsePublicKey([]byte(p.PubKey))
		if err != nil {
			return nil, fmt.Errorf("invalid public key for publisher %s: %w", p.ID, err)
		}
		result[p.ID] = key
	}

	return result, nil
}

// LoadPublisherKeysFile is LoadPublisherKeys on a file.
func LoadPublisherKeysFile(path string) (map[string]*ecdsa.PublicKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadPublisherKeys(f)
}

// Middleware rejects requests without a valid signature with 401. The body
// is buffered for verification and restored for the next handler.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.verify(w, r)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			a.log.Warn("Authentication failed",
				slog.String("publisher_id", id),
				slog.String("path", r.URL.Path),
				"err", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		a.log.Debug("Publisher authenticated", slog.String("publisher_id", id))
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) verify(w http.ResponseWriter, r *http.Request) (string, error) {
	id := r.Header.Get(cryptoutils.PublisherIDHeader)
	signature := r.Header.Get(cryptoutils.SignatureHeader)
	if id == "" || signature == "" {
		return id, errors.New("missing signature headers")
	}

	key, exists := a.keys[id]
	if !exists {
		return id, errors.New("unknown publisher")
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodySize))
		if err != nil {
			return id, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	if err := cryptoutils.VerifyRequest(key, r.Method, r.URL.RequestURI(), body, signature); err != nil {
		return id, err
	}
	return id, nil
}
