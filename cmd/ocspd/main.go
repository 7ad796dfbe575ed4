// Command ocspd is an RFC 6960 OCSP responder.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ocspd",
	Short: "ocspd - an RFC 6960 OCSP responder",
	Long: `ocspd is an OCSP responder (RFC 6960) serving certificate status
for one or more certificate authorities.

Each configured CA pairs an issuer certificate with signing material
and an OpenSSL-style index file holding per-certificate status. The
responder answers both POST (binary body) and GET (base64 request in
the URL path) queries.

Supported signing algorithms:
  Classical: ECDSA (P-256, P-384, P-521), Ed25519, RSA
  PQC:       ML-DSA-44, ML-DSA-65, ML-DSA-87, SLH-DSA (FIPS 204/205)

Examples:
  # Start the responder
  ocspd serve --config ocspd.yaml

  # Build an OCSP request for a certificate
  ocspd request --issuer ca.crt --cert server.crt --out req.der

  # Query a responder and verify the answer
  ocspd check --issuer ca.crt --cert server.crt --url http://localhost:8080/ocsp`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}
