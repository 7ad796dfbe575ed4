// Package config loads the responder configuration file and turns it
// into the material the responder core consumes: an ordered CA list
// and an index-backed validity oracle.
package config

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"
	"gopkg.in/yaml.v3"

	"github.com/verapki/ocspd/internal/certdb"
	"github.com/verapki/ocspd/internal/responder"
)

// File is the YAML configuration surface.
type File struct {
	Listen                ListenConfig `yaml:"listen"`
	CopyNonce             bool         `yaml:"copy_nonce"`
	RequireSignedRequests bool         `yaml:"require_signed_requests"`
	AuditLog              string       `yaml:"audit_log"`
	CAs                   []CAEntry    `yaml:"cas"`
}

// ListenConfig holds the HTTP listener settings. Timeouts are in
// seconds; zero means the server default.
type ListenConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds     int    `yaml:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// CAEntry configures one issuing authority.
type CAEntry struct {
	CACert           string   `yaml:"ca_cert"`
	ResponderCert    string   `yaml:"responder_cert"`
	ResponderKey     string   `yaml:"responder_key"`
	Chain            []string `yaml:"chain"`
	Index            string   `yaml:"index"`
	StartSkewSeconds int      `yaml:"start_skew_seconds"`
	ValidityHours    int      `yaml:"validity_hours"`
}

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(f.CAs) == 0 {
		return nil, fmt.Errorf("config must declare at least one CA")
	}

	return &f, nil
}

// Build loads the PEM material referenced by the config and produces
// the ordered CA list plus the index-backed oracle. Any failure here is
// fatal: the responder refuses to start on a broken trust config.
func (f *File) Build() ([]*responder.CAConfig, *certdb.IndexOracle, error) {
	configs := make([]*responder.CAConfig, 0, len(f.CAs))
	oracle := certdb.NewIndexOracle()

	for i, entry := range f.CAs {
		cfg, err := entry.build()
		if err != nil {
			return nil, nil, fmt.Errorf("ca[%d]: %w", i, err)
		}
		configs = append(configs, cfg)

		if entry.Index != "" {
			oracle.Register(cfg.CACert, certdb.NewStore(entry.Index))
		}
	}

	return configs, oracle, nil
}

func (e *CAEntry) build() (*responder.CAConfig, error) {
	if e.CACert == "" {
		return nil, fmt.Errorf("ca_cert is required")
	}
	if e.ResponderKey == "" {
		return nil, fmt.Errorf("responder_key is required")
	}

	caCert, err := LoadCertificate(e.CACert)
	if err != nil {
		return nil, fmt.Errorf("ca_cert: %w", err)
	}

	cfg := &responder.CAConfig{
		CACert:    caCert,
		StartSkew: time.Duration(e.StartSkewSeconds) * time.Second,
		Validity:  time.Duration(e.ValidityHours) * time.Hour,
	}

	if e.ResponderCert != "" {
		cfg.ResponderCert, err = LoadCertificate(e.ResponderCert)
		if err != nil {
			return nil, fmt.Errorf("responder_cert: %w", err)
		}
	}

	cfg.Signer, err = LoadSigner(e.ResponderKey)
	if err != nil {
		return nil, fmt.Errorf("responder_key: %w", err)
	}

	for _, path := range e.Chain {
		chainCert, err := LoadCertificate(path)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", path, err)
		}
		cfg.Chain = append(cfg.Chain, chainCert)
	}

	return cfg, nil
}

// LoadCertificate loads a certificate from a PEM or DER file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCertificate(data)
}

// ParseCertificate parses a certificate from PEM or DER format.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}
	return x509.ParseCertificate(data)
}

// LoadSigner loads a private key from a PEM file. PKCS#8, SEC 1 (EC)
// and PKCS#1 (RSA) encodings are accepted, plus the raw ML-DSA and
// SLH-DSA encodings ("ML-DSA-65 PRIVATE KEY",
// "SLH-DSA-SHA2-128s PRIVATE KEY", ...).
func LoadSigner(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("key type %T cannot sign", key)
		}
		return signer, nil

	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)

	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)

	case "ML-DSA-44 PRIVATE KEY":
		var key mldsa44.PrivateKey
		if err := key.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-44 key: %w", err)
		}
		return &key, nil

	case "ML-DSA-65 PRIVATE KEY":
		var key mldsa65.PrivateKey
		if err := key.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-65 key: %w", err)
		}
		return &key, nil

	case "ML-DSA-87 PRIVATE KEY":
		var key mldsa87.PrivateKey
		if err := key.UnmarshalBinary(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse ML-DSA-87 key: %w", err)
		}
		return &key, nil

	default:
		if id, ok := slhdsaKeyID(block.Type); ok {
			var key slhdsa.PrivateKey
			key.ID = id
			if err := key.UnmarshalBinary(block.Bytes); err != nil {
				return nil, fmt.Errorf("failed to parse %s key: %w", block.Type, err)
			}
			return &key, nil
		}
		return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
	}
}

// slhdsaKeyID maps SLH-DSA PEM type headers to their parameter set.
func slhdsaKeyID(pemType string) (slhdsa.ID, bool) {
	ids := map[string]slhdsa.ID{
		"SLH-DSA-SHA2-128s PRIVATE KEY": slhdsa.SHA2_128s,
		"SLH-DSA-SHA2-128f PRIVATE KEY": slhdsa.SHA2_128f,
		"SLH-DSA-SHA2-192s PRIVATE KEY": slhdsa.SHA2_192s,
		"SLH-DSA-SHA2-192f PRIVATE KEY": slhdsa.SHA2_192f,
		"SLH-DSA-SHA2-256s PRIVATE KEY": slhdsa.SHA2_256s,
		"SLH-DSA-SHA2-256f PRIVATE KEY": slhdsa.SHA2_256f,
	}
	id, ok := ids[pemType]
	return id, ok
}
