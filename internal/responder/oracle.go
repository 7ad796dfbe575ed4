package responder

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// CertStatus is the responder's view of a certificate's revocation
// status. It is deliberately distinct from the wire-level enumeration
// in the ocsp package; translation happens in the response builder.
type CertStatus int

const (
	StatusGood CertStatus = iota
	StatusRevoked
	StatusUnknown
)

// String returns a human-readable status string.
func (s CertStatus) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusRevoked:
		return "revoked"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RevocationReason per RFC 5280 §5.3.1.
type RevocationReason int

const (
	ReasonUnspecified          RevocationReason = 0
	ReasonKeyCompromise        RevocationReason = 1
	ReasonCACompromise         RevocationReason = 2
	ReasonAffiliationChanged   RevocationReason = 3
	ReasonSuperseded           RevocationReason = 4
	ReasonCessationOfOperation RevocationReason = 5
	ReasonCertificateHold      RevocationReason = 6
	// 7 is not used
	ReasonRemoveFromCRL      RevocationReason = 8
	ReasonPrivilegeWithdrawn RevocationReason = 9
	ReasonAACompromise       RevocationReason = 10
)

// String returns a human-readable name for the reason.
func (r RevocationReason) String() string {
	switch r {
	case ReasonUnspecified:
		return "unspecified"
	case ReasonKeyCompromise:
		return "keyCompromise"
	case ReasonCACompromise:
		return "caCompromise"
	case ReasonAffiliationChanged:
		return "affiliationChanged"
	case ReasonSuperseded:
		return "superseded"
	case ReasonCessationOfOperation:
		return "cessationOfOperation"
	case ReasonCertificateHold:
		return "certificateHold"
	case ReasonRemoveFromCRL:
		return "removeFromCRL"
	case ReasonPrivilegeWithdrawn:
		return "privilegeWithdrawn"
	case ReasonAACompromise:
		return "aaCompromise"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// ParseRevocationReason parses a reason string.
func ParseRevocationReason(s string) (RevocationReason, error) {
	switch strings.ToLower(s) {
	case "unspecified", "":
		return ReasonUnspecified, nil
	case "keycompromise", "key-compromise":
		return ReasonKeyCompromise, nil
	case "cacompromise", "ca-compromise":
		return ReasonCACompromise, nil
	case "affiliationchanged", "affiliation-changed":
		return ReasonAffiliationChanged, nil
	case "superseded":
		return ReasonSuperseded, nil
	case "cessationofoperation", "cessation":
		return ReasonCessationOfOperation, nil
	case "certificatehold", "hold":
		return ReasonCertificateHold, nil
	case "removefromcrl":
		return ReasonRemoveFromCRL, nil
	case "privilegewithdrawn":
		return ReasonPrivilegeWithdrawn, nil
	case "aacompromise":
		return ReasonAACompromise, nil
	default:
		return 0, fmt.Errorf("unknown revocation reason: %s", s)
	}
}

// Status is the answer a ValidityOracle gives for one certificate.
// RevokedAt and Reason are meaningful only when Status is StatusRevoked.
type Status struct {
	Status    CertStatus
	RevokedAt time.Time
	Reason    RevocationReason
}

// ErrTryLater signals that the status source is temporarily unable to
// answer. The responder maps it to the tryLater response status instead
// of internalError, inviting the client to retry.
var ErrTryLater = errors.New("status source temporarily unavailable")

// ValidityOracle answers revocation-status queries for certificates,
// identified by their issuer and serial number.
//
// Implementations must be safe for concurrent use; the responder calls
// Check from many in-flight requests without additional locking.
type ValidityOracle interface {
	Check(ctx context.Context, issuer *x509.Certificate, serial *big.Int) (Status, error)
}

// GoodOracle reports every certificate as good. It is the trivial
// oracle for deployments where revocation is tracked elsewhere and for
// tests; production responders use a database-backed implementation
// such as certdb.IndexOracle.
type GoodOracle struct{}

var _ ValidityOracle = GoodOracle{}

// Check implements ValidityOracle.
func (GoodOracle) Check(context.Context, *x509.Certificate, *big.Int) (Status, error) {
	return Status{Status: StatusGood}, nil
}

// StaticOracle is an in-memory oracle keyed by issuer subject and
// serial number. Certificates without an entry are reported unknown.
type StaticOracle struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

var _ ValidityOracle = (*StaticOracle)(nil)

// NewStaticOracle creates an empty StaticOracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{statuses: make(map[string]Status)}
}

// SetStatus records the status for a certificate.
func (o *StaticOracle) SetStatus(issuer *x509.Certificate, serial *big.Int, status Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[staticKey(issuer, serial)] = status
}

// Check implements ValidityOracle.
func (o *StaticOracle) Check(_ context.Context, issuer *x509.Certificate, serial *big.Int) (Status, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status, ok := o.statuses[staticKey(issuer, serial)]
	if !ok {
		return Status{Status: StatusUnknown}, nil
	}
	return status, nil
}

func staticKey(issuer *x509.Certificate, serial *big.Int) string {
	return string(issuer.RawSubject) + "/" + serial.String()
}
