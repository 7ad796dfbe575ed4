package certdb

import (
	"context"
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/verapki/ocspd/internal/responder"
)

// IndexOracle answers validity queries from per-issuer index stores.
// Registration happens once at startup; Check only reads, so the
// oracle is safe for concurrent use without further locking.
type IndexOracle struct {
	stores map[string]*Store // key: issuer RawSubject
}

var _ responder.ValidityOracle = (*IndexOracle)(nil)

// NewIndexOracle creates an oracle with no registered issuers.
func NewIndexOracle() *IndexOracle {
	return &IndexOracle{stores: make(map[string]*Store)}
}

// Register binds an issuer to its index store.
func (o *IndexOracle) Register(issuer *x509.Certificate, store *Store) {
	o.stores[string(issuer.RawSubject)] = store
}

// Check implements responder.ValidityOracle.
//
// Certificates absent from the index, and issuers with no registered
// store, are reported unknown. A read failure is mapped to ErrTryLater:
// the index lives on a filesystem that may be briefly unavailable, and
// a retry is more useful to the client than internalError.
func (o *IndexOracle) Check(_ context.Context, issuer *x509.Certificate, serial *big.Int) (responder.Status, error) {
	store, ok := o.stores[string(issuer.RawSubject)]
	if !ok {
		return responder.Status{Status: responder.StatusUnknown}, nil
	}

	entry, err := store.Lookup(serial)
	if err != nil {
		return responder.Status{}, fmt.Errorf("%w: %v", responder.ErrTryLater, err)
	}
	if entry == nil {
		return responder.Status{Status: responder.StatusUnknown}, nil
	}

	switch entry.Status {
	case StatusValid, StatusExpired:
		// Expired certificates are still "good" from the OCSP
		// perspective: they were never revoked, just past their
		// validity period.
		return responder.Status{Status: responder.StatusGood}, nil
	case StatusRevoked:
		return responder.Status{
			Status:    responder.StatusRevoked,
			RevokedAt: entry.Revocation,
			Reason:    entry.Reason,
		}, nil
	default:
		return responder.Status{Status: responder.StatusUnknown}, nil
	}
}
