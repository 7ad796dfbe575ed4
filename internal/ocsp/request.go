// Package ocsp implements the RFC 6960 wire format: request parsing,
// response construction and signing, and response verification.
//
// The package is protocol plumbing only. Authorization decisions and
// status lookups live in the responder package; this package answers
// "what do the bytes say" and "sign these assertions".
package ocsp

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// OCSPRequest represents an OCSP request (RFC 6960 §4.1.1).
// OCSPRequest ::= SEQUENCE {
//
//	tbsRequest                  TBSRequest,
//	optionalSignature   [0]     EXPLICIT Signature OPTIONAL }
type OCSPRequest struct {
	TBSRequest        TBSRequest
	OptionalSignature Signature `asn1:"optional,explicit,tag:0"`
}

// TBSRequest is the to-be-signed part of an OCSP request.
// TBSRequest ::= SEQUENCE {
//
//	version             [0]     EXPLICIT Version DEFAULT v1,
//	requestorName       [1]     EXPLICIT GeneralName OPTIONAL,
//	requestList                 SEQUENCE OF Request,
//	requestExtensions   [2]     EXPLICIT Extensions OPTIONAL }
type TBSRequest struct {
	Version           int              `asn1:"optional,explicit,tag:0,default:0"`
	RequestorName     asn1.RawValue    `asn1:"optional,explicit,tag:1"`
	RequestList       []Request        `asn1:"sequence"`
	RequestExtensions []pkix.Extension `asn1:"optional,explicit,tag:2"`
}

// Request represents a single certificate status request.
// Request ::= SEQUENCE {
//
//	reqCert                     CertID,
//	singleRequestExtensions     [0] EXPLICIT Extensions OPTIONAL }
type Request struct {
	ReqCert                 CertID
	SingleRequestExtensions []pkix.Extension `asn1:"optional,explicit,tag:0"`
}

// CertID identifies a certificate for which status is requested.
// CertID ::= SEQUENCE {
//
//	hashAlgorithm       AlgorithmIdentifier,
//	issuerNameHash      OCTET STRING,
//	issuerKeyHash       OCTET STRING,
//	serialNumber        CertificateSerialNumber }
type CertID struct {
	HashAlgorithm  pkix.AlgorithmIdentifier
	IssuerNameHash []byte
	IssuerKeyHash  []byte
	SerialNumber   *big.Int
}

// Signature represents an optional signature on the request.
// Signature ::= SEQUENCE {
//
//	signatureAlgorithm      AlgorithmIdentifier,
//	signature               BIT STRING,
//	certs               [0] EXPLICIT SEQUENCE OF Certificate OPTIONAL }
type Signature struct {
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
	Certs              []asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// ParseRequest parses a DER-encoded OCSP request.
func ParseRequest(data []byte) (*OCSPRequest, error) {
	var req OCSPRequest
	rest, err := asn1.Unmarshal(data, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCSP request: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after OCSP request")
	}

	if req.TBSRequest.Version != 0 {
		return nil, fmt.Errorf("unsupported OCSP request version: %d", req.TBSRequest.Version)
	}

	// A request with no certificate ids is malformed (RFC 6960 §4.1.1
	// requires SEQUENCE OF Request to be non-empty for anything useful,
	// and an empty list would leave nothing to select a signer from).
	if len(req.TBSRequest.RequestList) == 0 {
		return nil, fmt.Errorf("OCSP request contains no certificate requests")
	}

	return &req, nil
}

// IsSigned reports whether the request carries an optional signature.
func (req *OCSPRequest) IsSigned() bool {
	return req.OptionalSignature.Signature.BitLength > 0
}

// GetNonce extracts the nonce extension from the request, if present.
func (req *OCSPRequest) GetNonce() []byte {
	for _, ext := range req.TBSRequest.RequestExtensions {
		if ext.Id.Equal(OIDOcspNonce) {
			// Nonce is an OCTET STRING
			var nonce []byte
			if _, err := asn1.Unmarshal(ext.Value, &nonce); err == nil {
				return nonce
			}
			return ext.Value
		}
	}
	return nil
}

// Marshal encodes the OCSP request to DER format.
func (req *OCSPRequest) Marshal() ([]byte, error) {
	return asn1.Marshal(*req)
}

// hashOID returns the AlgorithmIdentifier OID for a hash algorithm.
func hashOID(alg crypto.Hash) (asn1.ObjectIdentifier, error) {
	switch alg {
	case crypto.SHA1:
		return OIDSHA1, nil
	case crypto.SHA256:
		return OIDSHA256, nil
	case crypto.SHA384:
		return OIDSHA384, nil
	case crypto.SHA512:
		return OIDSHA512, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %v", alg)
	}
}

// hashFromOID is the inverse of hashOID.
func hashFromOID(oid asn1.ObjectIdentifier) (crypto.Hash, bool) {
	switch {
	case oid.Equal(OIDSHA1):
		return crypto.SHA1, true
	case oid.Equal(OIDSHA256):
		return crypto.SHA256, true
	case oid.Equal(OIDSHA384):
		return crypto.SHA384, true
	case oid.Equal(OIDSHA512):
		return crypto.SHA512, true
	default:
		return 0, false
	}
}

// hashSum computes the digest of data with the given algorithm.
func hashSum(data []byte, alg crypto.Hash) []byte {
	switch alg {
	case crypto.SHA1:
		sum := sha1.Sum(data)
		return sum[:]
	case crypto.SHA384:
		sum := sha512.Sum384(data)
		return sum[:]
	case crypto.SHA512:
		sum := sha512.Sum512(data)
		return sum[:]
	default:
		sum := sha256.Sum256(data)
		return sum[:]
	}
}

// issuerPublicKeyBytes extracts the subjectPublicKey BIT STRING contents
// from the issuer's SubjectPublicKeyInfo.
//
// RFC 6960: issuerKeyHash is calculated over the value (excluding tag and
// length) of the subject public key field in the issuer's certificate.
func issuerPublicKeyBytes(issuer *x509.Certificate) ([]byte, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(issuer.RawSubjectPublicKeyInfo, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse issuer SubjectPublicKeyInfo: %w", err)
	}
	return spki.PublicKey.Bytes, nil
}

// NewCertID creates a CertID for a certificate issued by the given issuer.
func NewCertID(hashAlg crypto.Hash, issuer, cert *x509.Certificate) (*CertID, error) {
	return NewCertIDFromSerial(hashAlg, issuer, cert.SerialNumber)
}

// NewCertIDFromSerial creates a CertID for a serial number from the given issuer.
func NewCertIDFromSerial(hashAlg crypto.Hash, issuer *x509.Certificate, serial *big.Int) (*CertID, error) {
	oid, err := hashOID(hashAlg)
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := issuerPublicKeyBytes(issuer)
	if err != nil {
		return nil, err
	}

	return &CertID{
		HashAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm: oid,
		},
		IssuerNameHash: hashSum(issuer.RawSubject, hashAlg),
		IssuerKeyHash:  hashSum(pubKeyBytes, hashAlg),
		SerialNumber:   serial,
	}, nil
}

// CreateRequest creates an OCSP request for the given certificates.
func CreateRequest(issuer *x509.Certificate, certs []*x509.Certificate, hashAlg crypto.Hash) (*OCSPRequest, error) {
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates provided")
	}

	requests := make([]Request, len(certs))
	for i, cert := range certs {
		certID, err := NewCertID(hashAlg, issuer, cert)
		if err != nil {
			return nil, fmt.Errorf("failed to create CertID for certificate %d: %w", i, err)
		}
		requests[i] = Request{
			ReqCert: *certID,
		}
	}

	return &OCSPRequest{
		TBSRequest: TBSRequest{
			Version:     0,
			RequestList: requests,
		},
	}, nil
}

// CreateRequestWithNonce creates an OCSP request with a nonce extension.
func CreateRequestWithNonce(issuer *x509.Certificate, certs []*x509.Certificate, hashAlg crypto.Hash, nonce []byte) (*OCSPRequest, error) {
	req, err := CreateRequest(issuer, certs, hashAlg)
	if err != nil {
		return nil, err
	}
	if err := req.AddNonce(nonce); err != nil {
		return nil, err
	}
	return req, nil
}

// AddNonce appends a nonce extension to the request.
func (req *OCSPRequest) AddNonce(nonce []byte) error {
	nonceValue, err := asn1.Marshal(nonce)
	if err != nil {
		return fmt.Errorf("failed to marshal nonce: %w", err)
	}

	req.TBSRequest.RequestExtensions = append(req.TBSRequest.RequestExtensions, pkix.Extension{
		Id:       OIDOcspNonce,
		Critical: false,
		Value:    nonceValue,
	})
	return nil
}

// MatchesIssuer checks if the CertID's issuer hashes match the given issuer.
func (id *CertID) MatchesIssuer(issuer *x509.Certificate) bool {
	hashAlg, ok := hashFromOID(id.HashAlgorithm.Algorithm)
	if !ok {
		return false
	}

	pubKeyBytes, err := issuerPublicKeyBytes(issuer)
	if err != nil {
		return false
	}

	return string(id.IssuerNameHash) == string(hashSum(issuer.RawSubject, hashAlg)) &&
		string(id.IssuerKeyHash) == string(hashSum(pubKeyBytes, hashAlg))
}

// MatchesCertID checks if a CertID matches a certificate from the given issuer.
func (id *CertID) MatchesCertID(issuer *x509.Certificate, serial *big.Int) bool {
	return id.MatchesIssuer(issuer) && id.SerialNumber.Cmp(serial) == 0
}
