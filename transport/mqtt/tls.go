package mqtt

import (
	"crypto/tls"

	"github.com/pkg/errors"
)

// CreateTLSConfig loads the client key pair. Empty paths disable TLS.
func CreateTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("no certificate configured")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "load x509 key pair")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
	}, nil
}
