package flags

import (
	"crypto/tls"
	"fmt"

	"github.com/ruteri/content-publisher/cryptoutils"
)

func selfSignedTLS() (*tls.Config, error) {
	cert, err := cryptoutils.RandomCert("localhost")
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
