// Package handler implements the HTTP endpoints of the responder.
package handler

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verapki/ocspd/internal/ocsp"
	"github.com/verapki/ocspd/internal/responder"
)

const (
	// maxRequestSize caps request bodies; OCSP requests are tiny and
	// anything larger is garbage or abuse.
	maxRequestSize = 10 * 1024

	requestContentType  = "application/ocsp-request"
	responseContentType = "application/ocsp-response"
)

// OCSPHandler serves OCSP-over-HTTP (RFC 6960 Appendix A): POST with a
// binary body, or GET with the base64 request in the path.
type OCSPHandler struct {
	responder *responder.Responder
	logger    *zap.Logger
}

// NewOCSPHandler creates a new OCSPHandler.
func NewOCSPHandler(rsp *responder.Responder, logger *zap.Logger) *OCSPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OCSPHandler{responder: rsp, logger: logger}
}

// ServeHTTP handles OCSP requests via GET and POST.
func (h *OCSPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var reqBytes []byte
	var err error

	switch r.Method {
	case http.MethodGet:
		reqBytes, err = requestFromGET(r)
	case http.MethodPost:
		reqBytes, err = requestFromPOST(r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		h.logger.Debug("failed to extract OCSP request", zap.Error(err))
		// Protocol errors still travel as OCSP responses over HTTP 200.
		writeResponse(w, h.responder.HandleRequest(r.Context(), nil))
		return
	}

	writeResponse(w, h.responder.HandleRequest(r.Context(), reqBytes))
}

// requestFromGET extracts the DER request from a GET path, where it is
// URL-escaped base64 (RFC 6960 Appendix A.1).
func requestFromGET(r *http.Request) ([]byte, error) {
	path := strings.TrimPrefix(r.URL.Path, "/ocsp")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, fmt.Errorf("empty OCSP request in GET path")
	}

	decoded, err := url.PathUnescape(path)
	if err != nil {
		return nil, fmt.Errorf("failed to URL-decode OCSP request: %w", err)
	}

	// Standard base64 first, then the URL-safe variants some clients use.
	if data, err := base64.StdEncoding.DecodeString(decoded); err == nil {
		return data, nil
	}
	if data, err := base64.URLEncoding.DecodeString(decoded); err == nil {
		return data, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to base64-decode OCSP request: %w", err)
	}
	return data, nil
}

// requestFromPOST reads the DER request from a POST body.
func requestFromPOST(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, requestContentType) {
		// Be lenient: some clients send a generic application type.
		if !strings.HasPrefix(contentType, "application/") {
			return nil, fmt.Errorf("invalid content type: %s", contentType)
		}
	}

	if r.ContentLength > maxRequestSize {
		return nil, fmt.Errorf("request too large: %d bytes", r.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty OCSP request body")
	}

	return data, nil
}

func writeResponse(w http.ResponseWriter, respBytes []byte) {
	w.Header().Set("Content-Type", responseContentType)
	if maxAge := cacheMaxAge(respBytes); maxAge > 0 {
		w.Header().Set("Cache-Control",
			fmt.Sprintf("max-age=%d, public, no-transform, must-revalidate", maxAge))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBytes)
}

// cacheMaxAge returns the cache lifetime in seconds for a successful
// response: until its nextUpdate, per the RFC 5019 lightweight profile.
// Error responses and responses without a nextUpdate are not cacheable.
func cacheMaxAge(respBytes []byte) int {
	resp, err := ocsp.ParseResponse(respBytes)
	if err != nil || ocsp.ResponseStatus(resp.Status) != ocsp.StatusSuccessful {
		return 0
	}
	basic, err := ocsp.ParseBasicResponse(resp.ResponseBytes.Response)
	if err != nil || len(basic.TBSResponseData.Responses) == 0 {
		return 0
	}

	nextUpdate := basic.TBSResponseData.Responses[0].NextUpdate
	if nextUpdate.IsZero() {
		return 0
	}
	return int(time.Until(nextUpdate).Seconds())
}
