package responder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/verapki/ocspd/internal/ocsp"
)

// RequestValidator classifies the certificate ids of a parsed request
// against the ordered authority list and collects oracle statuses.
type RequestValidator struct {
	configs []*CAConfig
	oracle  ValidityOracle
	logger  *zap.Logger
}

// NewRequestValidator creates a validator over an ordered, non-empty
// authority list. Misconfiguration is a construction-time error, never
// a per-request one.
func NewRequestValidator(configs []*CAConfig, oracle ValidityOracle, logger *zap.Logger) (*RequestValidator, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one CA configuration is required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("validity oracle is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RequestValidator{
		configs: configs,
		oracle:  oracle,
		logger:  logger,
	}, nil
}

// CheckStatuses resolves every certificate id in the request to a
// StatusEntry. The first config in list order whose CA subject and key
// hashes match the id wins; ids matching no config yield an entry with
// a nil Config and the oracle is not consulted for them.
//
// Oracle failures abort the whole request; the controller maps them to
// internalError (or tryLater for ErrTryLater).
func (v *RequestValidator) CheckStatuses(ctx context.Context, req *ocsp.OCSPRequest) ([]StatusEntry, error) {
	entries := make([]StatusEntry, 0, len(req.TBSRequest.RequestList))

	for i := range req.TBSRequest.RequestList {
		certID := &req.TBSRequest.RequestList[i].ReqCert

		cfg := v.match(certID)
		if cfg == nil {
			v.logger.Debug("no authority matched certificate id",
				zap.String("serial", certID.SerialNumber.Text(16)))
			entries = append(entries, StatusEntry{CertID: certID})
			continue
		}

		status, err := v.oracle.Check(ctx, cfg.CACert, certID.SerialNumber)
		if err != nil {
			return nil, fmt.Errorf("status check for serial %s failed: %w",
				certID.SerialNumber.Text(16), err)
		}

		entries = append(entries, StatusEntry{
			CertID:    certID,
			Status:    status.Status,
			Reason:    status.Reason,
			RevokedAt: status.RevokedAt,
			Config:    cfg,
		})
	}

	return entries, nil
}

// ValidateStatuses reports whether the entries authorize a response:
// every entry must have matched a config, and all entries must have
// matched the same config. A request spanning two authorities is
// rejected even if each id individually matched.
func (v *RequestValidator) ValidateStatuses(entries []StatusEntry) bool {
	if len(entries) == 0 {
		return false
	}

	first := entries[0].Config
	for i := range entries {
		if entries[i].Config == nil || entries[i].Config != first {
			return false
		}
	}
	return true
}

// match returns the first configured authority the id's issuer hashes
// resolve to, or nil.
func (v *RequestValidator) match(certID *ocsp.CertID) *CAConfig {
	for _, cfg := range v.configs {
		if certID.MatchesIssuer(cfg.CACert) {
			return cfg
		}
	}
	return nil
}
