package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

const (
	PublisherIDHeader = "X-Publisher-ID"
	SignatureHeader   = "X-Publisher-Signature"
)

var ErrInvalidSignature = errors.New("invalid request signature")

// RequestDigest is the hash a publisher signs for one request.
func RequestDigest(method, requestURI string, body []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(" "))
	h.Write([]byte(requestURI))
	h.Write([]byte("\n"))
	h.Write(body)

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// SignRequest sets the identity and signature headers on req. body must be
// the exact bytes req will send.
func SignRequest(req *http.Request, body []byte, id string, key *ecdsa.PrivateKey) error {
	digest := RequestDigest(req.Method, req.URL.RequestURI(), body)
	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(PublisherIDHeader, id)
	req.Header.Set(SignatureHeader, base64.StdEncoding.EncodeToString(signature))
	return nil
}

// VerifyRequest checks a base64 signature produced by SignRequest.
func VerifyRequest(pub *ecdsa.PublicKey, method, requestURI string, body []byte, signatureB64 string) error {
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("%w: bad encoding", ErrInvalidSignature)
	}

	digest := RequestDigest(method, requestURI, body)
	if !ecdsa.VerifyASN1(pub, digest[:], signature) {
		return ErrInvalidSignature
	}
	return nil
}
