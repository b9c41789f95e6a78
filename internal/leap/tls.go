package leap

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
)

// CheckPaired reports ErrNotPaired when any of the credential files
// produced by pairing is missing.
func CheckPaired(keyFile, certFile, caFile string) error {
	for _, path := range []string{keyFile, certFile, caFile} {
		if path == "" {
			return fmt.Errorf("%w: credential path not configured", ErrNotPaired)
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s missing", ErrNotPaired, path)
			}
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return nil
}

// LoadTLSConfig builds a client TLS configuration from paired credentials.
//
// Bridge certificates are issued for the bridge's internal name rather
// than its network address, so the chain is verified against the bridge
// CA without a host name check.
func LoadTLSConfig(keyFile, certFile, caFile string) (*tls.Config, error) {
	if err := CheckPaired(keyFile, certFile, caFile); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(caFile) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading bridge CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("bridge CA %s contains no certificates", caFile)
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // chain verified in VerifyPeerCertificate
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyChain(rawCerts, pool)
		},
	}, nil
}

func verifyChain(rawCerts [][]byte, roots *x509.CertPool) error {
	if len(rawCerts) == 0 {
		return errors.New("bridge presented no certificate")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("parsing bridge certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
	})
	if err != nil {
		return fmt.Errorf("verifying bridge certificate: %w", err)
	}
	return nil
}

func tlsDialer(cfg *tls.Config) *tls.Dialer {
	return &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
}
