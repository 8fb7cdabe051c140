// Package cryptoutils holds the key handling behind authenticated publishing:
// ECDSA P-256 publisher keys in PEM form, request signatures and throwaway
// TLS certificates for local servers.
//
// A write request is signed over its method, request URI and body:
//
//	sha256(METHOD + " " + REQUEST_URI + "\n" + BODY)
//
// and carries the signer's ID and the base64 ASN.1 signature in the
// X-Publisher-ID and X-Publisher-Signature headers.
package cryptoutils
