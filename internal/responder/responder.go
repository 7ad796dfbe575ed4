package responder

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/verapki/ocspd/internal/audit"
	"github.com/verapki/ocspd/internal/ocsp"
)

// Options control per-responder behavior.
type Options struct {
	// CopyNonce echoes a request nonce into the signed response.
	CopyNonce bool

	// RequireRequestSignature rejects unsigned requests with the
	// sigRequired status (RFC 6960 §2.3).
	RequireRequestSignature bool
}

// Responder is the externally callable entry point: raw request bytes
// in, response bytes out. Every protocol-level failure is expressed as
// a response status code, never as a Go error.
type Responder struct {
	validator *RequestValidator
	builder   *ResponseBuilder
	opts      Options
	logger    *zap.Logger
	audit     audit.Writer
}

// New creates a Responder over an ordered authority list and an oracle.
// An empty config list, an invalid config or a nil oracle is a fatal
// construction error; the process must refuse to start rather than
// fail per-request.
func New(configs []*CAConfig, oracle ValidityOracle, opts Options, logger *zap.Logger, auditLog audit.Writer) (*Responder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.NopWriter{}
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	validator, err := NewRequestValidator(configs, oracle, logger)
	if err != nil {
		return nil, err
	}

	return &Responder{
		validator: validator,
		builder:   NewResponseBuilder(opts.CopyNonce, logger),
		opts:      opts,
		logger:    logger,
		audit:     auditLog,
	}, nil
}

// HandleRequest processes one DER-encoded OCSP request and returns the
// DER-encoded response.
//
// Outcome mapping: unparseable or empty request ⇒ malformedRequest;
// unsigned request under RequireRequestSignature ⇒ sigRequired;
// unmatched or mixed-authority ids ⇒ unauthorized; oracle outage ⇒
// tryLater; any other oracle or signing fault ⇒ internalError;
// otherwise a signed successful response.
func (r *Responder) HandleRequest(ctx context.Context, der []byte) []byte {
	req, err := ocsp.ParseRequest(der)
	if err != nil {
		r.logger.Debug("rejecting unparseable request", zap.Error(err))
		return r.finish(ocsp.StatusMalformedRequest, nil)
	}

	if r.opts.RequireRequestSignature && !req.IsSigned() {
		r.logger.Debug("rejecting unsigned request")
		return r.finish(ocsp.StatusSigRequired, nil)
	}

	// ParseRequest already rejects an empty requestList; this guard
	// keeps a hand-constructed request value from reaching signing
	// with nothing to select a signer from.
	if len(req.TBSRequest.RequestList) == 0 {
		return r.finish(ocsp.StatusMalformedRequest, nil)
	}

	entries, err := r.validator.CheckStatuses(ctx, req)
	if err != nil {
		if errors.Is(err, ErrTryLater) {
			r.logger.Warn("status source unavailable", zap.Error(err))
			return r.finish(ocsp.StatusTryLater, nil)
		}
		r.logger.Error("status check failed", zap.Error(err))
		return r.finish(ocsp.StatusInternalError, nil)
	}

	if !r.validator.ValidateStatuses(entries) {
		r.logger.Info("rejecting request not authorized for a single configured CA",
			zap.Int("entries", len(entries)))
		return r.finish(ocsp.StatusUnauthorized, entries)
	}

	basic, err := r.builder.CreateBasicResponse(req, entries)
	if err != nil {
		r.logger.Error("failed to build signed response", zap.Error(err))
		return r.finish(ocsp.StatusInternalError, entries)
	}

	resp, err := r.builder.CreateResponse(ocsp.StatusSuccessful, basic)
	if err != nil {
		r.logger.Error("failed to build response envelope", zap.Error(err))
		return r.finish(ocsp.StatusInternalError, entries)
	}

	r.record(ocsp.StatusSuccessful, entries)
	return resp
}

// finish emits the audit trail for a non-successful outcome and
// returns the minimal error envelope.
func (r *Responder) finish(status ocsp.ResponseStatus, entries []StatusEntry) []byte {
	r.record(status, entries)
	return ocsp.ErrorResponse(status)
}

func (r *Responder) record(status ocsp.ResponseStatus, entries []StatusEntry) {
	serials := make([]string, 0, len(entries))
	for i := range entries {
		serials = append(serials, entries[i].CertID.SerialNumber.Text(16))
	}

	event := audit.NewResponseEvent(status.String(), serials)
	if err := r.audit.Write(event); err != nil {
		// Serving status beats a perfect trail here; responding is
		// read-only, unlike the issuance operations that abort on
		// audit failure.
		r.logger.Warn("audit write failed", zap.Error(err))
	}
}
