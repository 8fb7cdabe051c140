package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairRoundTrip(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Contains(t, string(privPEM), "EC PRIVATE KEY")
	assert.Contains(t, string(pubPEM), "PUBLIC KEY")

	priv, err := ParsePrivateKey(privPEM)
	require.NoError(t, err)
	pub, err := ParsePublicKey(pubPEM)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(pub))

	fp1, err := Fingerprint(pub)
	require.NoError(t, err)
	fp2, err := Fingerprint(&priv.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)
}

func TestParsePrivateKey_PKCS8(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))
}

func TestParseKeys_Invalid(t *testing.T) {
	_, err := ParsePrivateKey([]byte("not pem"))
	assert.ErrorIs(t, err, ErrInvalidPEM)

	_, err = ParsePublicKey([]byte("not pem"))
	assert.ErrorIs(t, err, ErrInvalidPEM)

	_, err = ParsePublicKey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1, 2, 3}}))
	assert.Error(t, err)
}

func TestSignAndVerifyRequest(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)
	priv, err := ParsePrivateKey(privPEM)
	require.NoError(t, err)
	pub, err := ParsePublicKey(pubPEM)
	require.NoError(t, err)

	body := []byte("<p>hello</p>")
	req := httptest.NewRequest(http.MethodPut, "http://pub.local/api/objects/posts/a?x=1", strings.NewReader(string(body)))
	require.NoError(t, SignRequest(req, body, "alice", priv))
	assert.Equal(t, "alice", req.Header.Get(PublisherIDHeader))

	sig := req.Header.Get(SignatureHeader)
	require.NoError(t, VerifyRequest(pub, http.MethodPut, "/api/objects/posts/a?x=1", body, sig))

	tests := []struct {
		name   string
		method string
		uri    string
		body   []byte
		sig    string
	}{
		{name: "other method", method: http.MethodDelete, uri: "/api/objects/posts/a?x=1", body: body, sig: sig},
		{name: "other path", method: http.MethodPut, uri: "/api/objects/posts/b?x=1", body: body, sig: sig},
		{name: "other body", method: http.MethodPut, uri: "/api/objects/posts/a?x=1", body: []byte("tampered"), sig: sig},
		{name: "bad encoding", method: http.MethodPut, uri: "/api/objects/posts/a?x=1", body: body, sig: "%%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, VerifyRequest(pub, tt.method, tt.uri, tt.body, tt.sig), ErrInvalidSignature)
		})
	}
}

func TestRandomCert(t *testing.T) {
	cert, err := RandomCert("localhost")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, parsed.DNSNames)
	assert.NoError(t, parsed.VerifyHostname("localhost"))
}
