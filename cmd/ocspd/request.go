package main

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verapki/ocspd/internal/config"
	"github.com/verapki/ocspd/internal/ocsp"
)

// Request command flags
var (
	requestIssuer string
	requestCerts  []string
	requestSerial string
	requestNonce  bool
	requestOut    string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Build a DER-encoded OCSP request",
	Long: `Build a DER-encoded OCSP request for one or more certificates.

The request identifies each certificate by its CertID, computed from
the issuer certificate and the subject's serial number. The target can
be given as a certificate file (--cert, repeatable) or as a bare hex
serial (--serial).

Examples:
  # Request for one certificate
  ocspd request --issuer ca.crt --cert server.crt --out req.der

  # Request by serial number, with a nonce
  ocspd request --issuer ca.crt --serial 0A1B2C --nonce --out req.der`,
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringVar(&requestIssuer, "issuer", "", "Issuer CA certificate (required)")
	requestCmd.Flags().StringArrayVar(&requestCerts, "cert", nil, "Certificate to query (repeatable)")
	requestCmd.Flags().StringVar(&requestSerial, "serial", "", "Serial number in hex (alternative to --cert)")
	requestCmd.Flags().BoolVar(&requestNonce, "nonce", false, "Add a random nonce extension")
	requestCmd.Flags().StringVar(&requestOut, "out", "", "Output file (default: stdout)")

	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	der, err := buildRequest()
	if err != nil {
		return err
	}

	if requestOut == "" {
		_, err = os.Stdout.Write(der)
		return err
	}
	if err := os.WriteFile(requestOut, der, 0644); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	fmt.Printf("✓ OCSP request written to %s (%d bytes)\n", requestOut, len(der))
	return nil
}

func buildRequest() ([]byte, error) {
	if requestIssuer == "" {
		return nil, fmt.Errorf("--issuer is required")
	}
	if len(requestCerts) == 0 && requestSerial == "" {
		return nil, fmt.Errorf("either --cert or --serial is required")
	}

	issuer, err := config.LoadCertificate(requestIssuer)
	if err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}

	var req *ocsp.OCSPRequest
	if requestSerial != "" {
		serial, err := parseSerialHex(requestSerial)
		if err != nil {
			return nil, err
		}
		certID, err := ocsp.NewCertIDFromSerial(crypto.SHA256, issuer, serial)
		if err != nil {
			return nil, err
		}
		req = &ocsp.OCSPRequest{
			TBSRequest: ocsp.TBSRequest{
				RequestList: []ocsp.Request{{ReqCert: *certID}},
			},
		}
	} else {
		certs, err := loadCertificates(requestCerts)
		if err != nil {
			return nil, err
		}
		req, err = ocsp.CreateRequest(issuer, certs, crypto.SHA256)
		if err != nil {
			return nil, err
		}
	}

	if requestNonce {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
		if err := req.AddNonce(nonce); err != nil {
			return nil, err
		}
	}

	return req.Marshal()
}

func parseSerialHex(s string) (*big.Int, error) {
	clean := strings.ReplaceAll(strings.ReplaceAll(s, ":", ""), " ", "")
	serial := new(big.Int)
	if _, ok := serial.SetString(clean, 16); !ok {
		return nil, fmt.Errorf("invalid serial number: %s", s)
	}
	return serial, nil
}

func loadCertificates(paths []string) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(paths))
	for _, path := range paths {
		cert, err := config.LoadCertificate(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
