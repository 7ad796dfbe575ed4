// Package responder implements the decision core of the OCSP
// responder: classifying each requested certificate against the set of
// authorities the responder answers for, consulting a validity oracle,
// and assembling the signed response.
package responder

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/verapki/ocspd/internal/ocsp"
)

// Default time-window parameters, applied by Validate when a CAConfig
// leaves them zero.
const (
	DefaultStartSkew = time.Minute
	DefaultValidity  = 24 * time.Hour
)

// CAConfig holds the trust and signing material for one issuing
// authority the responder is allowed to answer for.
//
// A CAConfig is immutable after Validate; the responder holds an
// ordered list and the list order decides which config wins when more
// than one matches a request's issuer hashes.
type CAConfig struct {
	// CACert is the certificate of the issuing authority. Its subject
	// and public key are what request CertIDs are matched against.
	CACert *x509.Certificate

	// ResponderCert is the certificate responses are signed under.
	// If nil, the CA certificate is used directly (CA-signed mode).
	ResponderCert *x509.Certificate

	// Signer is the private key matching ResponderCert.
	Signer crypto.Signer

	// Chain holds additional certificates embedded in the response so
	// relying parties can build a path to a trust anchor.
	Chain []*x509.Certificate

	// StartSkew is how far into the past thisUpdate is set, tolerating
	// clock drift between responder and client.
	StartSkew time.Duration

	// Validity is the length of the thisUpdate..nextUpdate window.
	Validity time.Duration
}

// Validate checks the config and fills in defaults. It must be called
// once at startup; the config must not be mutated afterwards.
func (c *CAConfig) Validate() error {
	if c.CACert == nil {
		return fmt.Errorf("CA certificate is required")
	}
	if c.Signer == nil {
		return fmt.Errorf("signer is required for CA %q", c.CACert.Subject.CommonName)
	}

	if c.ResponderCert == nil {
		c.ResponderCert = c.CACert
	}
	if c.StartSkew == 0 {
		c.StartSkew = DefaultStartSkew
	}
	if c.StartSkew < 0 {
		return fmt.Errorf("start skew must not be negative")
	}
	if c.Validity <= 0 {
		c.Validity = DefaultValidity
	}

	return nil
}

// Name returns a short identifier for logging.
func (c *CAConfig) Name() string {
	return c.CACert.Subject.CommonName
}

// StatusEntry is the per-certificate outcome of request validation: the
// requested id, the oracle's answer, and the authority the id resolved
// to. A nil Config marks an id no configured authority matched, which
// forces rejection of the whole request.
type StatusEntry struct {
	CertID    *ocsp.CertID
	Status    CertStatus
	Reason    RevocationReason
	RevokedAt time.Time
	Config    *CAConfig
}
