package security

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// ErrCertificatePinMismatch is returned when no certificate in the served
// chain matches a configured pin.
var ErrCertificatePinMismatch = errors.New("certificate pin mismatch")

// CertificatePinner restricts TLS connections to certificates whose SPKI
// SHA-256 hash is pinned. An empty pin set disables pinning.
type CertificatePinner struct {
	pins map[string]struct{}
}

// NewCertificatePinner creates a pinner from hex encoded SPKI hashes
func NewCertificatePinner(pins []string) *CertificatePinner {
	cp := &CertificatePinner{pins: make(map[string]struct{}, len(pins))}
	for _, pin := range pins {
		pin = strings.ToLower(strings.TrimSpace(pin))
		if pin != "" {
			cp.pins[pin] = struct{}{}
		}
	}
	return cp
}

// Enabled reports whether any pins are configured
func (cp *CertificatePinner) Enabled() bool {
	return len(cp.pins) > 0
}

// WrapTransport returns a clone of base that enforces the pins. With no
// pins it returns base unchanged.
func (cp *CertificatePinner) WrapTransport(base *http.Transport) *http.Transport {
	if !cp.Enabled() {
		return base
	}
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}

	t := base.Clone()
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	t.TLSClientConfig.VerifyConnection = cp.verifyConnection
	return t
}

func (cp *CertificatePinner) verifyConnection(cs tls.ConnectionState) error {
	for _, cert := range cs.PeerCertificates {
		if _, ok := cp.pins[SPKIHash(cert)]; ok {
			return nil
		}
	}
	return ErrCertificatePinMismatch
}

// SPKIHash returns the hex SHA-256 of the certificate's public key info
func SPKIHash(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(sum[:])
}
