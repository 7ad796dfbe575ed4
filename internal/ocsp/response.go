package ocsp

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"
)

// ResponseStatus represents the status of an OCSP response (RFC 6960 §2.3).
type ResponseStatus int

const (
	StatusSuccessful       ResponseStatus = 0
	StatusMalformedRequest ResponseStatus = 1
	StatusInternalError    ResponseStatus = 2
	StatusTryLater         ResponseStatus = 3
	// 4 is not used
	StatusSigRequired  ResponseStatus = 5
	StatusUnauthorized ResponseStatus = 6
)

// String returns a human-readable status string.
func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusMalformedRequest:
		return "malformedRequest"
	case StatusInternalError:
		return "internalError"
	case StatusTryLater:
		return "tryLater"
	case StatusSigRequired:
		return "sigRequired"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// CertStatus represents the revocation status of a certificate on the wire.
type CertStatus int

const (
	CertStatusGood    CertStatus = 0
	CertStatusRevoked CertStatus = 1
	CertStatusUnknown CertStatus = 2
)

// String returns a human-readable status string.
func (s CertStatus) String() string {
	switch s {
	case CertStatusGood:
		return "good"
	case CertStatusRevoked:
		return "revoked"
	case CertStatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// OCSPResponse represents an OCSP response (RFC 6960 §4.2.1).
// OCSPResponse ::= SEQUENCE {
//
//	responseStatus         OCSPResponseStatus,
//	responseBytes          [0] EXPLICIT ResponseBytes OPTIONAL }
type OCSPResponse struct {
	Status        asn1.Enumerated
	ResponseBytes responseBytes `asn1:"optional,explicit,tag:0"`
}

// responseBytes holds the actual response data.
// ResponseBytes ::= SEQUENCE {
//
//	responseType   OBJECT IDENTIFIER,
//	response       OCTET STRING }
type responseBytes struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

// BasicOCSPResponse is the standard response type (RFC 6960 §4.2.1).
// BasicOCSPResponse ::= SEQUENCE {
//
//	tbsResponseData      ResponseData,
//	signatureAlgorithm   AlgorithmIdentifier,
//	signature            BIT STRING,
//	certs            [0] EXPLICIT SEQUENCE OF Certificate OPTIONAL }
type BasicOCSPResponse struct {
	TBSResponseData    ResponseData
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
	Certs              []asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// ResponseData contains the response information to be signed.
// ResponseData ::= SEQUENCE {
//
//	version              [0] EXPLICIT Version DEFAULT v1,
//	responderID              ResponderID,
//	producedAt               GeneralizedTime,
//	responses                SEQUENCE OF SingleResponse,
//	responseExtensions   [1] EXPLICIT Extensions OPTIONAL }
type ResponseData struct {
	Version            int              `asn1:"optional,explicit,tag:0,default:0"`
	ResponderID        asn1.RawValue    // CHOICE: byName [1] or byKey [2]
	ProducedAt         time.Time        `asn1:"generalized"`
	Responses          []SingleResponse `asn1:"sequence"`
	ResponseExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

// SingleResponse contains status for a single certificate.
// SingleResponse ::= SEQUENCE {
//
//	certID                       CertID,
//	certStatus                   CertStatus,
//	thisUpdate                   GeneralizedTime,
//	nextUpdate           [0]     EXPLICIT GeneralizedTime OPTIONAL,
//	singleExtensions     [1]     EXPLICIT Extensions OPTIONAL }
type SingleResponse struct {
	CertID           CertID
	CertStatus       asn1.RawValue
	ThisUpdate       time.Time        `asn1:"generalized"`
	NextUpdate       time.Time        `asn1:"optional,explicit,tag:0,generalized"`
	SingleExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

// RevokedInfo contains revocation details.
// RevokedInfo ::= SEQUENCE {
//
//	revocationTime              GeneralizedTime,
//	revocationReason    [0]     EXPLICIT CRLReason OPTIONAL }
type RevokedInfo struct {
	RevocationTime   time.Time       `asn1:"generalized"`
	RevocationReason asn1.Enumerated `asn1:"optional,explicit,tag:0"`
}

// ResponseBuilder assembles and signs a BasicOCSPResponse.
type ResponseBuilder struct {
	responderCert *x509.Certificate
	signer        crypto.Signer
	chain         []*x509.Certificate
	producedAt    time.Time
	responses     []SingleResponse
	extensions    []pkix.Extension
	includeCerts  bool
}

// NewResponseBuilder creates a new response builder.
func NewResponseBuilder(responderCert *x509.Certificate, signer crypto.Signer) *ResponseBuilder {
	return &ResponseBuilder{
		responderCert: responderCert,
		signer:        signer,
		producedAt:    time.Now().UTC(),
		includeCerts:  true,
	}
}

// SetProducedAt sets the producedAt time.
func (b *ResponseBuilder) SetProducedAt(t time.Time) *ResponseBuilder {
	b.producedAt = t.UTC()
	return b
}

// SetChain sets additional certificates to embed alongside the
// responder certificate so relying parties can build the path.
func (b *ResponseBuilder) SetChain(chain []*x509.Certificate) *ResponseBuilder {
	b.chain = chain
	return b
}

// IncludeCerts sets whether to include the responder certificate and chain.
func (b *ResponseBuilder) IncludeCerts(include bool) *ResponseBuilder {
	b.includeCerts = include
	return b
}

// AddGood adds a "good" status for a certificate.
func (b *ResponseBuilder) AddGood(certID *CertID, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	// good [0] IMPLICIT NULL
	certStatus := asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: false,
		Bytes:      nil,
	}

	b.responses = append(b.responses, SingleResponse{
		CertID:     *certID,
		CertStatus: certStatus,
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	})
	return b
}

// AddRevoked adds a "revoked" status for a certificate.
func (b *ResponseBuilder) AddRevoked(certID *CertID, thisUpdate, nextUpdate time.Time, revocationTime time.Time, reason int) *ResponseBuilder {
	// revoked [1] IMPLICIT RevokedInfo
	revokedInfo := RevokedInfo{
		RevocationTime:   revocationTime.UTC(),
		RevocationReason: asn1.Enumerated(reason),
	}
	revokedBytes, _ := asn1.Marshal(revokedInfo)

	certStatus := asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        1,
		IsCompound: true,
		Bytes:      revokedBytes,
	}

	b.responses = append(b.responses, SingleResponse{
		CertID:     *certID,
		CertStatus: certStatus,
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	})
	return b
}

// AddUnknown adds an "unknown" status for a certificate.
func (b *ResponseBuilder) AddUnknown(certID *CertID, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	// unknown [2] IMPLICIT NULL
	certStatus := asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        2,
		IsCompound: false,
		Bytes:      nil,
	}

	b.responses = append(b.responses, SingleResponse{
		CertID:     *certID,
		CertStatus: certStatus,
		ThisUpdate: thisUpdate.UTC(),
		NextUpdate: nextUpdate.UTC(),
	})
	return b
}

// AddNonce adds a nonce extension to the response.
func (b *ResponseBuilder) AddNonce(nonce []byte) *ResponseBuilder {
	if len(nonce) > 0 {
		nonceValue, _ := asn1.Marshal(nonce)
		b.extensions = append(b.extensions, pkix.Extension{
			Id:       OIDOcspNonce,
			Critical: false,
			Value:    nonceValue,
		})
	}
	return b
}

// BuildBasic signs the accumulated single responses and returns the
// DER-encoded BasicOCSPResponse. The outer envelope is produced
// separately by NewResponse.
func (b *ResponseBuilder) BuildBasic() ([]byte, error) {
	if len(b.responses) == 0 {
		return nil, fmt.Errorf("no responses added")
	}

	responderID, err := b.responderID()
	if err != nil {
		return nil, err
	}

	responseData := ResponseData{
		Version:            0,
		ResponderID:        responderID,
		ProducedAt:         b.producedAt,
		Responses:          b.responses,
		ResponseExtensions: b.extensions,
	}

	tbsData, err := asn1.Marshal(responseData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}

	signature, sigAlg, err := b.sign(tbsData)
	if err != nil {
		return nil, fmt.Errorf("failed to sign response: %w", err)
	}

	basicResp := BasicOCSPResponse{
		TBSResponseData:    responseData,
		SignatureAlgorithm: sigAlg,
		Signature:          asn1.BitString{Bytes: signature, BitLength: len(signature) * 8},
	}

	if b.includeCerts {
		basicResp.Certs = []asn1.RawValue{{FullBytes: b.responderCert.Raw}}
		for _, c := range b.chain {
			basicResp.Certs = append(basicResp.Certs, asn1.RawValue{FullBytes: c.Raw})
		}
	}

	basicDER, err := asn1.Marshal(basicResp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal basic response: %w", err)
	}

	return basicDER, nil
}

// responderID builds the byKey [2] ResponderID.
//
// RFC 6960 §4.2.1: KeyHash is the SHA-1 hash of the value of the BIT
// STRING subjectPublicKey (excluding tag, length, and unused bits
// octet), the same derivation as SubjectKeyIdentifier in RFC 5280.
func (b *ResponseBuilder) responderID() (asn1.RawValue, error) {
	pubKeyBytes, err := issuerPublicKeyBytes(b.responderCert)
	if err != nil {
		return asn1.RawValue{}, err
	}
	keyHash := sha1.Sum(pubKeyBytes)

	// Marshal as OCTET STRING first, then wrap in the EXPLICIT [2] tag.
	octetString, err := asn1.Marshal(keyHash[:])
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("failed to marshal key hash: %w", err)
	}

	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        2,
		IsCompound: true,
		Bytes:      octetString,
	}, nil
}

// NewResponse wraps a status code and an optional signed basic response
// into the final OCSPResponse envelope. For any status other than
// successful the basic response is omitted.
func NewResponse(status ResponseStatus, basicDER []byte) ([]byte, error) {
	if status != StatusSuccessful {
		return asn1.Marshal(OCSPResponse{Status: asn1.Enumerated(status)})
	}
	if len(basicDER) == 0 {
		return nil, fmt.Errorf("successful response requires a basic response")
	}

	return asn1.Marshal(OCSPResponse{
		Status: asn1.Enumerated(status),
		ResponseBytes: responseBytes{
			ResponseType: OIDOcspBasic,
			Response:     basicDER,
		},
	})
}

// ErrorResponse returns the minimal DER encoding of an unsuccessful
// OCSPResponse: a SEQUENCE holding the bare status enum. The encoding
// is fixed-shape so this cannot fail, which keeps the responder's
// error paths free of further error handling.
func ErrorResponse(status ResponseStatus) []byte {
	return []byte{0x30, 0x03, 0x0a, 0x01, byte(status)}
}

// sign signs the data with the responder's key.
func (b *ResponseBuilder) sign(data []byte) ([]byte, pkix.AlgorithmIdentifier, error) {
	pub := b.signer.Public()

	switch pubKey := pub.(type) {
	case *ecdsa.PublicKey:
		// Hash strength follows curve size: SHA-256 for P-256,
		// SHA-384 for P-384, SHA-512 for P-521.
		var hashAlg crypto.Hash
		var sigAlg pkix.AlgorithmIdentifier

		switch pubKey.Curve.Params().BitSize {
		case 256:
			hashAlg = crypto.SHA256
			sigAlg = pkix.AlgorithmIdentifier{Algorithm: OIDECDSAWithSHA256}
		case 384:
			hashAlg = crypto.SHA384
			sigAlg = pkix.AlgorithmIdentifier{Algorithm: OIDECDSAWithSHA384}
		case 521:
			hashAlg = crypto.SHA512
			sigAlg = pkix.AlgorithmIdentifier{Algorithm: OIDECDSAWithSHA512}
		default:
			return nil, pkix.AlgorithmIdentifier{}, fmt.Errorf("unsupported ECDSA curve size: %d", pubKey.Curve.Params().BitSize)
		}

		sig, err := b.signer.Sign(rand.Reader, hashSum(data, hashAlg), hashAlg)
		return sig, sigAlg, err

	case ed25519.PublicKey:
		sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
		return sig, pkix.AlgorithmIdentifier{Algorithm: OIDEd25519}, err

	case *rsa.PublicKey:
		hashAlg := crypto.SHA256
		sigAlg := pkix.AlgorithmIdentifier{Algorithm: OIDSHA256WithRSA}
		sig, err := b.signer.Sign(rand.Reader, hashSum(data, hashAlg), hashAlg)
		return sig, sigAlg, err

	// Pure ML-DSA (FIPS 204) signs the full message; opts must hash to 0.
	case *mldsa44.PublicKey:
		sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
		return sig, pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA44}, err

	case *mldsa65.PublicKey:
		sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
		return sig, pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA65}, err

	case *mldsa87.PublicKey:
		sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
		return sig, pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA87}, err

	default:
		// PQC signing (ML-DSA, SLH-DSA)
		switch slhPub := pub.(type) {
		case *slhdsa.PublicKey:
			sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
			return sig, pkix.AlgorithmIdentifier{Algorithm: slhdsaIDToOID(slhPub.ID)}, err
		case slhdsa.PublicKey:
			sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
			return sig, pkix.AlgorithmIdentifier{Algorithm: slhdsaIDToOID(slhPub.ID)}, err
		}

		// The circl library uses mode2, mode3, mode5 for ML-DSA-44,
		// ML-DSA-65, ML-DSA-87.
		typeName := fmt.Sprintf("%T", pub)
		switch typeName {
		case "*mode2.PublicKey":
			sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
			return sig, pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA44}, err
		case "*mode3.PublicKey":
			sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
			return sig, pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA65}, err
		case "*mode5.PublicKey":
			sig, err := b.signer.Sign(rand.Reader, data, crypto.Hash(0))
			return sig, pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA87}, err
		default:
			return nil, pkix.AlgorithmIdentifier{}, fmt.Errorf("unsupported key type: %T", pub)
		}
	}
}

// slhdsaIDToOID maps SLH-DSA ID to the corresponding OID.
func slhdsaIDToOID(id slhdsa.ID) asn1.ObjectIdentifier {
	switch id {
	case slhdsa.SHA2_128s:
		return OIDSLHDSA128s
	case slhdsa.SHA2_128f:
		return OIDSLHDSA128f
	case slhdsa.SHA2_192s:
		return OIDSLHDSA192s
	case slhdsa.SHA2_192f:
		return OIDSLHDSA192f
	case slhdsa.SHA2_256s:
		return OIDSLHDSA256s
	case slhdsa.SHA2_256f:
		return OIDSLHDSA256f
	default:
		return nil
	}
}
