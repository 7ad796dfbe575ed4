package main

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/verapki/ocspd/internal/config"
	"github.com/verapki/ocspd/internal/ocsp"
)

// Check command flags
var (
	checkIssuer   string
	checkCert     string
	checkURL      string
	checkResponse string
	checkNonce    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a certificate's status against an OCSP responder",
	Long: `Check a certificate's revocation status.

With --url, the command builds an OCSP request, POSTs it to the
responder and verifies the answer: signature, responder authorization
(EKU id-kp-OCSPSigning for delegated responders), validity window and
CertID match.

With --response, a previously saved DER response is verified offline
instead of querying a responder.

Examples:
  # Query a live responder
  ocspd check --issuer ca.crt --cert server.crt --url http://localhost:8080/ocsp

  # Query with a nonce
  ocspd check --issuer ca.crt --cert server.crt --url http://localhost:8080/ocsp --nonce

  # Verify a saved response
  ocspd check --issuer ca.crt --cert server.crt --response resp.der`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkIssuer, "issuer", "", "Issuer CA certificate (required)")
	checkCmd.Flags().StringVar(&checkCert, "cert", "", "Certificate to check (required)")
	checkCmd.Flags().StringVar(&checkURL, "url", "", "Responder URL to query")
	checkCmd.Flags().StringVar(&checkResponse, "response", "", "DER response file to verify offline")
	checkCmd.Flags().BoolVar(&checkNonce, "nonce", false, "Add a random nonce to the request")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkIssuer == "" || checkCert == "" {
		return fmt.Errorf("--issuer and --cert are required")
	}
	if (checkURL == "") == (checkResponse == "") {
		return fmt.Errorf("exactly one of --url or --response is required")
	}

	issuer, err := config.LoadCertificate(checkIssuer)
	if err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	cert, err := config.LoadCertificate(checkCert)
	if err != nil {
		return fmt.Errorf("cert: %w", err)
	}

	var responseDER []byte
	if checkResponse != "" {
		responseDER, err = os.ReadFile(checkResponse)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
	} else {
		responseDER, err = queryResponder(issuer, cert)
		if err != nil {
			return err
		}
	}

	result, err := ocsp.Verify(responseDER, &ocsp.VerifyConfig{
		IssuerCert:  issuer,
		Certificate: cert,
	})
	if err != nil {
		return fmt.Errorf("response verification failed: %w", err)
	}

	printCheckResult(result)
	if result.CertStatus == ocsp.CertStatusRevoked {
		os.Exit(1)
	}
	return nil
}

func queryResponder(issuer, cert *x509.Certificate) ([]byte, error) {
	req, err := ocsp.CreateRequest(issuer, []*x509.Certificate{cert}, crypto.SHA256)
	if err != nil {
		return nil, err
	}
	if checkNonce {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return nil, err
		}
		if err := req.AddNonce(nonce); err != nil {
			return nil, err
		}
	}

	der, err := req.Marshal()
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(checkURL, "application/ocsp-request", bytes.NewReader(der))
	if err != nil {
		return nil, fmt.Errorf("responder query failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("responder returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func printCheckResult(result *ocsp.VerifyResult) {
	fmt.Printf("OCSP response: %s\n", result.Status)
	fmt.Printf("  Certificate status: %s\n", result.CertStatus)
	if result.CertStatus == ocsp.CertStatusRevoked {
		fmt.Printf("  Revoked at:         %s\n", result.RevocationTime.Format(time.RFC3339))
		fmt.Printf("  Reason:             %d\n", result.RevocationReason)
	}
	fmt.Printf("  Produced at:        %s\n", result.ProducedAt.Format(time.RFC3339))
	fmt.Printf("  This update:        %s\n", result.ThisUpdate.Format(time.RFC3339))
	if !result.NextUpdate.IsZero() {
		fmt.Printf("  Next update:        %s\n", result.NextUpdate.Format(time.RFC3339))
	}
	if result.ResponderCert != nil {
		fmt.Printf("  Responder:          %s\n", result.ResponderCert.Subject.CommonName)
	}
}
