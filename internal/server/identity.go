package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/geminid/internal/config"
	"software.sslmate.com/src/go-pkcs12"
)

var (
	ErrIdentityRequired = errors.New("server: tls identity required")
	ErrIdentityKey      = errors.New("server: identity bundle has no usable private key")
)

// LoadIdentity reads the server certificate from a PKCS#12 bundle when
// identity_file is set, otherwise from the PEM cert/key pair.
func LoadIdentity(cfg config.Config) (tls.Certificate, error) {
	if path := strings.TrimSpace(cfg.IdentityFile); path != "" {
		return loadPKCS12(path, cfg.IdentityPassphrase)
	}
	if strings.TrimSpace(cfg.CertFile) == "" || strings.TrimSpace(cfg.KeyFile) == "" {
		return tls.Certificate{}, ErrIdentityRequired
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("server: load key pair: %w", err)
	}
	return cert, nil
}

func loadPKCS12(path, passphrase string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("server: read identity: %w", err)
	}
	key, leaf, chain, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("server: decode identity %s: %w", path, err)
	}
	if key == nil {
		return tls.Certificate{}, fmt.Errorf("%w: %s", ErrIdentityKey, path)
	}
	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, ca := range chain {
		cert.Certificate = append(cert.Certificate, ca.Raw)
	}
	return cert, nil
}

// ServerTLSConfig builds the listener TLS policy. Gemini mandates TLS 1.2+.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
}
