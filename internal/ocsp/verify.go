package ocsp

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

// VerifyConfig contains options for verifying an OCSP response.
type VerifyConfig struct {
	// IssuerCert is the CA certificate that issued the certificate being checked.
	IssuerCert *x509.Certificate

	// ResponderCert is the expected OCSP responder certificate.
	// If nil, it will be extracted from the response.
	ResponderCert *x509.Certificate

	// Certificate is the certificate being checked (optional, for CertID validation).
	Certificate *x509.Certificate

	// CurrentTime is the time to use for validation (default: now).
	CurrentTime time.Time

	// SkipSignatureVerify skips signature verification.
	SkipSignatureVerify bool
}

// VerifyResult contains the result of OCSP response verification.
type VerifyResult struct {
	// Status is the overall response status.
	Status ResponseStatus

	// CertStatus is the certificate's revocation status.
	CertStatus CertStatus

	// RevocationTime is when the certificate was revoked (if revoked).
	RevocationTime time.Time

	// RevocationReason is why the certificate was revoked (if revoked).
	RevocationReason int

	// ProducedAt is when the response was generated.
	ProducedAt time.Time

	// ThisUpdate is when this status was known to be correct.
	ThisUpdate time.Time

	// NextUpdate is when new status information will be available.
	NextUpdate time.Time

	// ResponderCert is the certificate that signed the response.
	ResponderCert *x509.Certificate

	// SerialNumber is the serial number of the certificate checked.
	SerialNumber *big.Int
}

// ParseResponse parses a DER-encoded OCSP response envelope.
func ParseResponse(data []byte) (*OCSPResponse, error) {
	var resp OCSPResponse
	rest, err := asn1.Unmarshal(data, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCSP response: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after OCSP response")
	}

	return &resp, nil
}

// ParseBasicResponse parses a DER-encoded BasicOCSPResponse.
func ParseBasicResponse(data []byte) (*BasicOCSPResponse, error) {
	var basicResp BasicOCSPResponse
	if _, err := asn1.Unmarshal(data, &basicResp); err != nil {
		return nil, fmt.Errorf("failed to parse BasicOCSPResponse: %w", err)
	}
	return &basicResp, nil
}

// Verify verifies an OCSP response.
func Verify(responseData []byte, config *VerifyConfig) (*VerifyResult, error) {
	if config == nil {
		config = &VerifyConfig{}
	}
	if config.CurrentTime.IsZero() {
		config.CurrentTime = time.Now()
	}

	resp, err := ParseResponse(responseData)
	if err != nil {
		return nil, err
	}

	status := ResponseStatus(resp.Status)
	if status != StatusSuccessful {
		return &VerifyResult{Status: status}, nil
	}

	if !resp.ResponseBytes.ResponseType.Equal(OIDOcspBasic) {
		return nil, fmt.Errorf("unsupported response type: %v", resp.ResponseBytes.ResponseType)
	}

	basicResp, err := ParseBasicResponse(resp.ResponseBytes.Response)
	if err != nil {
		return nil, err
	}

	// Extract responder certificate
	var responderCert *x509.Certificate
	var isCAResponder bool
	if config.ResponderCert != nil {
		responderCert = config.ResponderCert
	} else if len(basicResp.Certs) > 0 {
		cert, err := x509.ParseCertificate(basicResp.Certs[0].FullBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse responder certificate: %w", err)
		}
		responderCert = cert
	} else if config.IssuerCert != nil {
		// CA-signed response
		responderCert = config.IssuerCert
		isCAResponder = true
	}

	// A delegated OCSP responder must have the id-kp-OCSPSigning EKU
	// (RFC 6960 §4.2.2.2).
	if responderCert != nil && !isCAResponder && config.IssuerCert != nil {
		if !bytes.Equal(responderCert.Raw, config.IssuerCert.Raw) {
			if err := verifyResponderAuthorization(responderCert); err != nil {
				return nil, fmt.Errorf("responder authorization failed: %w", err)
			}
		}
	}

	if !config.SkipSignatureVerify {
		if responderCert == nil {
			return nil, fmt.Errorf("no responder certificate available for verification")
		}

		tbsData, err := asn1.Marshal(basicResp.TBSResponseData)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal TBS response data: %w", err)
		}

		if err := verifySignature(tbsData, basicResp.Signature.Bytes,
			responderCert, basicResp.SignatureAlgorithm.Algorithm); err != nil {
			return nil, fmt.Errorf("signature verification failed: %w", err)
		}
	}

	if len(basicResp.TBSResponseData.Responses) == 0 {
		return nil, fmt.Errorf("no single responses in OCSP response")
	}

	// First single response: the common case is a one-entry response,
	// and multi-entry callers can walk TBSResponseData themselves.
	singleResp := basicResp.TBSResponseData.Responses[0]

	certStatus, revTime, revReason, err := parseCertStatus(singleResp.CertStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate status: %w", err)
	}

	if config.CurrentTime.Before(singleResp.ThisUpdate) {
		return nil, fmt.Errorf("response not yet valid (thisUpdate is in the future)")
	}
	if !singleResp.NextUpdate.IsZero() && config.CurrentTime.After(singleResp.NextUpdate) {
		return nil, fmt.Errorf("response has expired (nextUpdate has passed)")
	}

	if config.Certificate != nil && config.IssuerCert != nil {
		if !singleResp.CertID.MatchesCertID(config.IssuerCert, config.Certificate.SerialNumber) {
			return nil, fmt.Errorf("response CertID does not match certificate")
		}
	}

	return &VerifyResult{
		Status:           StatusSuccessful,
		CertStatus:       certStatus,
		RevocationTime:   revTime,
		RevocationReason: revReason,
		ProducedAt:       basicResp.TBSResponseData.ProducedAt,
		ThisUpdate:       singleResp.ThisUpdate,
		NextUpdate:       singleResp.NextUpdate,
		ResponderCert:    responderCert,
		SerialNumber:     singleResp.CertID.SerialNumber,
	}, nil
}

// parseCertStatus parses the certificate status from the ASN.1 CHOICE.
func parseCertStatus(raw asn1.RawValue) (CertStatus, time.Time, int, error) {
	switch raw.Tag {
	case 0: // good [0] IMPLICIT NULL
		return CertStatusGood, time.Time{}, 0, nil

	case 1: // revoked [1] IMPLICIT RevokedInfo
		var revokedInfo RevokedInfo
		if _, err := asn1.Unmarshal(raw.Bytes, &revokedInfo); err != nil {
			return 0, time.Time{}, 0, fmt.Errorf("failed to parse RevokedInfo: %w", err)
		}
		return CertStatusRevoked, revokedInfo.RevocationTime, int(revokedInfo.RevocationReason), nil

	case 2: // unknown [2] IMPLICIT NULL
		return CertStatusUnknown, time.Time{}, 0, nil

	default:
		return 0, time.Time{}, 0, fmt.Errorf("unknown cert status tag: %d", raw.Tag)
	}
}

// verifyResponderAuthorization checks that a delegated OCSP responder has
// the required id-kp-OCSPSigning extended key usage (RFC 6960 §4.2.2.2).
func verifyResponderAuthorization(cert *x509.Certificate) error {
	for _, eku := range cert.ExtKeyUsage {
		if eku == x509.ExtKeyUsageOCSPSigning {
			return nil
		}
	}

	// PQC certificates may carry the EKU where Go does not parse it.
	for _, oid := range cert.UnknownExtKeyUsage {
		if oid.Equal(OIDExtKeyUsageOCSPSigning) {
			return nil
		}
	}

	return fmt.Errorf("responder certificate does not have id-kp-OCSPSigning EKU")
}

// verifySignature verifies a classical signature (ECDSA, RSA, Ed25519)
// on the response. PQC-signed responses are verified by relying parties
// with PQC-aware tooling; this client-side helper covers the classical
// algorithm set.
func verifySignature(data, signature []byte, cert *x509.Certificate, sigAlgOID asn1.ObjectIdentifier) error {
	switch pubKey := cert.PublicKey.(type) {
	case *ecdsa.PublicKey:
		var hashAlg crypto.Hash
		switch {
		case sigAlgOID.Equal(OIDECDSAWithSHA256):
			hashAlg = crypto.SHA256
		case sigAlgOID.Equal(OIDECDSAWithSHA384):
			hashAlg = crypto.SHA384
		case sigAlgOID.Equal(OIDECDSAWithSHA512):
			hashAlg = crypto.SHA512
		default:
			return fmt.Errorf("unsupported ECDSA signature algorithm: %v", sigAlgOID)
		}

		if !ecdsa.VerifyASN1(pubKey, hashSum(data, hashAlg), signature) {
			return fmt.Errorf("ECDSA signature verification failed")
		}
		return nil

	case ed25519.PublicKey:
		if !sigAlgOID.Equal(OIDEd25519) {
			return fmt.Errorf("unexpected signature algorithm for Ed25519 key: %v", sigAlgOID)
		}
		if !ed25519.Verify(pubKey, data, signature) {
			return fmt.Errorf("Ed25519 signature verification failed")
		}
		return nil

	case *rsa.PublicKey:
		if !sigAlgOID.Equal(OIDSHA256WithRSA) {
			return fmt.Errorf("unsupported RSA signature algorithm: %v", sigAlgOID)
		}
		if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, hashSum(data, crypto.SHA256), signature); err != nil {
			return fmt.Errorf("RSA signature verification failed: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported public key type: %T", cert.PublicKey)
	}
}

// VerifyResponderCert checks if the responder certificate is valid for OCSP signing.
func VerifyResponderCert(cert *x509.Certificate, issuer *x509.Certificate) error {
	hasOCSPSigning := false
	for _, eku := range cert.ExtKeyUsage {
		if eku == x509.ExtKeyUsageOCSPSigning {
			hasOCSPSigning = true
			break
		}
	}

	// A CA may sign its own responses; anything else needs the EKU.
	if !cert.IsCA && !hasOCSPSigning {
		return fmt.Errorf("certificate does not have OCSP Signing extended key usage")
	}

	if issuer != nil {
		if !bytes.Equal(cert.RawIssuer, issuer.RawSubject) {
			return fmt.Errorf("certificate was not issued by the specified CA")
		}

		if err := cert.CheckSignatureFrom(issuer); err != nil {
			return fmt.Errorf("certificate signature verification failed: %w", err)
		}
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate has expired")
	}

	return nil
}
