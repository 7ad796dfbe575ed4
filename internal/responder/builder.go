package responder

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/verapki/ocspd/internal/ocsp"
)

// Builder errors. All of them surface as internalError on the wire;
// the validator prevents the mixed/unmatched cases from being reached
// in normal operation.
var (
	ErrNoEntries        = errors.New("no status entries to sign")
	ErrUnmatchedEntry   = errors.New("entry without a matched CA configuration")
	ErrMixedAuthorities = errors.New("entries span multiple CA configurations")
)

// ResponseBuilder turns validated status entries into a signed basic
// response and wraps status codes into response envelopes.
type ResponseBuilder struct {
	copyNonce bool
	logger    *zap.Logger

	// now is the clock; tests substitute it to pin time-field laws.
	now func() time.Time
}

// NewResponseBuilder creates a builder. When copyNonce is set, a nonce
// extension present in the request is echoed into the signed response.
func NewResponseBuilder(copyNonce bool, logger *zap.Logger) *ResponseBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseBuilder{
		copyNonce: copyNonce,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBasicResponse signs the entries into a DER BasicOCSPResponse.
//
// All entries must share one matched CAConfig (the validator's
// invariant); that config supplies the signing material and the time
// window: thisUpdate = now − StartSkew, nextUpdate = thisUpdate +
// Validity. Revocation times are carried through as an offset from the
// signing-time clock so the encoded instant is exact regardless of how
// long validation took.
func (b *ResponseBuilder) CreateBasicResponse(req *ocsp.OCSPRequest, entries []StatusEntry) ([]byte, error) {
	cfg, err := sharedConfig(entries)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	thisUpdate := now.Add(-cfg.StartSkew)
	nextUpdate := thisUpdate.Add(cfg.Validity)

	wire := ocsp.NewResponseBuilder(cfg.ResponderCert, cfg.Signer).
		SetChain(cfg.Chain).
		SetProducedAt(now)

	for i := range entries {
		entry := &entries[i]
		switch entry.Status {
		case StatusGood:
			wire.AddGood(entry.CertID, thisUpdate, nextUpdate)
		case StatusRevoked:
			revokedAt := now.Add(revocationOffset(entry, now))
			wire.AddRevoked(entry.CertID, thisUpdate, nextUpdate, revokedAt, int(entry.Reason))
		default:
			wire.AddUnknown(entry.CertID, thisUpdate, nextUpdate)
		}
	}

	if b.copyNonce {
		if nonce := req.GetNonce(); len(nonce) > 0 {
			wire.AddNonce(nonce)
		}
	}

	return wire.BuildBasic()
}

// CreateResponse wraps a status code and optional basic response into
// the final envelope. Anything other than successful omits the bundle.
func (b *ResponseBuilder) CreateResponse(status ocsp.ResponseStatus, basicDER []byte) ([]byte, error) {
	return ocsp.NewResponse(status, basicDER)
}

// revocationOffset is the wire-relative revocation delta: the stored
// absolute revocation time minus the signing-time clock.
func revocationOffset(entry *StatusEntry, now time.Time) time.Duration {
	return entry.RevokedAt.Sub(now)
}

// sharedConfig returns the single CAConfig all entries matched.
func sharedConfig(entries []StatusEntry) (*CAConfig, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	cfg := entries[0].Config
	for i := range entries {
		switch {
		case entries[i].Config == nil:
			return nil, ErrUnmatchedEntry
		case entries[i].Config != cfg:
			return nil, fmt.Errorf("%w: %q and %q", ErrMixedAuthorities,
				cfg.Name(), entries[i].Config.Name())
		}
	}
	return cfg, nil
}
