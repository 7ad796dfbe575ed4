package responder

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/verapki/ocspd/internal/ocsp"
)

// testCA bundles one authority's material for tests.
type testCA struct {
	Cert          *x509.Certificate
	Key           *ecdsa.PrivateKey
	ResponderCert *x509.Certificate
	ResponderKey  *ecdsa.PrivateKey
}

func generateTestCA(t *testing.T, cn string) *testCA {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate CA key: %v", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber: newSerial(t),
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("Failed to create CA certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("Failed to parse CA certificate: %v", err)
	}

	respKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate responder key: %v", err)
	}

	respTemplate := &x509.Certificate{
		SerialNumber: newSerial(t),
		Subject: pkix.Name{
			CommonName:   cn + " OCSP Responder",
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageOCSPSigning},
		BasicConstraintsValid: true,
	}

	respDER, err := x509.CreateCertificate(rand.Reader, respTemplate, caCert, &respKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("Failed to create responder certificate: %v", err)
	}
	respCert, err := x509.ParseCertificate(respDER)
	if err != nil {
		t.Fatalf("Failed to parse responder certificate: %v", err)
	}

	return &testCA{
		Cert:          caCert,
		Key:           caKey,
		ResponderCert: respCert,
		ResponderKey:  respKey,
	}
}

// Config builds a validated CAConfig for the authority.
func (ca *testCA) Config(t *testing.T) *CAConfig {
	t.Helper()
	cfg := &CAConfig{
		CACert:        ca.Cert,
		ResponderCert: ca.ResponderCert,
		Signer:        ca.ResponderKey,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("CAConfig.Validate failed: %v", err)
	}
	return cfg
}

// Issue issues an end-entity certificate from the authority.
func (ca *testCA) Issue(t *testing.T) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: newSerial(t),
		Subject: pkix.Name{
			CommonName:   "Test End Entity",
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert
}

// Request builds a DER OCSP request for certificates from the authority.
func (ca *testCA) Request(t *testing.T, certs ...*x509.Certificate) []byte {
	t.Helper()

	req, err := ocsp.CreateRequest(ca.Cert, certs, crypto.SHA256)
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	der, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return der
}

func newSerial(t *testing.T) *big.Int {
	t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("Failed to generate serial number: %v", err)
	}
	return serial
}

// responseStatusOf parses the outer envelope's status code.
func responseStatusOf(t *testing.T, der []byte) ocsp.ResponseStatus {
	t.Helper()
	resp, err := ocsp.ParseResponse(der)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	return ocsp.ResponseStatus(resp.Status)
}

// failingOracle always returns the given error.
type failingOracle struct {
	err error
}

func (o *failingOracle) Check(context.Context, *x509.Certificate, *big.Int) (Status, error) {
	return Status{}, o.err
}

// failingSigner generates valid public key material but refuses to sign.
type failingSigner struct {
	crypto.Signer
}

func (s *failingSigner) Sign(io.Reader, []byte, crypto.SignerOpts) ([]byte, error) {
	return nil, errors.New("signing refused")
}
