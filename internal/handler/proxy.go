package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"taskapi-gateway/internal/config"
	"taskapi-gateway/internal/metrics"
	"taskapi-gateway/internal/model"
	"taskapi-gateway/internal/service"
	"taskapi-gateway/internal/session"
)

// ProxyPrefix is the inbound route prefix stripped before forwarding.
const ProxyPrefix = "/api/proxy"

// Error envelope messages.
const (
	msgAuthRequired    = "Authentication required"
	msgNoSessionToken  = "No session token available"
	msgBackendFailed   = "Failed to connect to backend"
	msgInvalidBody     = "Invalid request body"
	msgBodyTooLarge    = "Request body too large"
	reasonNoSession    = "no_session"
	reasonNoCredential = "no_credential"
)

// bearerPattern matches bearer tokens that may surface in wrapped error strings.
var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[^\s"]+`)

// ProxyHandler authenticates callers and relays their API calls to the backend.
type ProxyHandler struct {
	gate    *session.Gate
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics

	// bodyLimit guards the forwarding step only, so oversized requests
	// without a session still get the authentication error.
	bodyLimit echo.MiddlewareFunc
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
// A non-positive server.body_max_bytes disables the body limit.
func NewProxyHandler(cfg *config.Config, gate *session.Gate, svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	var limit echo.MiddlewareFunc = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if cfg.Server.BodyMaxBytes > 0 {
		limit = echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes))
	}
	return &ProxyHandler{
		gate:      gate,
		service:   svc,
		logger:    logger.With("component", "proxy_handler"),
		metrics:   m,
		bodyLimit: limit,
	}
}

// Handle runs the gateway pipeline: authentication gate, credential
// extraction, forwarding with at most one redirect hop, then the response
// relay. Authentication failures never reach the backend.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	credential, err := h.gate.Authorize(req)
	if err != nil {
		return h.rejectAuth(c, err)
	}

	err = h.bodyLimit(func(c echo.Context) error {
		return h.forward(c, credential)
	})(c)
	if isBodyTooLarge(err) {
		// Declared Content-Length over the limit, rejected before any read.
		return h.mapError(c, err)
	}
	return err
}

func (h *ProxyHandler) forward(c echo.Context, credential string) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		Path:       forwardedPath(req),
		RawQuery:   req.URL.RawQuery,
		Header:     req.Header,
		Body:       req.Body,
		Credential: credential,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.relay(c, resp)
	return nil
}

// forwardedPath returns the still-escaped path below ProxyPrefix without its
// leading slash, so an encoded "/" inside a segment stays one segment.
func forwardedPath(req *http.Request) string {
	p := strings.TrimPrefix(req.URL.EscapedPath(), ProxyPrefix)
	return strings.TrimPrefix(p, "/")
}

// relay writes the already filtered backend response to the caller. The
// status line uses net/http's reason phrase for the code; custom reason
// phrases cannot be emitted through http.ResponseWriter.
func (h *ProxyHandler) relay(c echo.Context, resp *model.ProxyResponse) {
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is written a mid-stream failure can only truncate the
	// body; it is logged and the connection is left to close.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", c.Request().URL.Path,
		)
	}
}

func (h *ProxyHandler) rejectAuth(c echo.Context, err error) error {
	reason, msg := reasonNoSession, msgAuthRequired
	if errors.Is(err, session.ErrNoCredential) {
		reason, msg = reasonNoCredential, msgNoSessionToken
	}

	if h.metrics != nil {
		h.metrics.AuthRejections.WithLabelValues(reason).Inc()
	}
	h.logger.Info("request rejected",
		"reason", reason,
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": msg})
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrMissingCredential) {
		return h.rejectAuth(c, session.ErrNoCredential)
	}

	if isBodyTooLarge(err) {
		h.logger.Warn("request body too large", "path", c.Request().URL.Path)
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": msgBodyTooLarge})
	}

	if errors.Is(err, service.ErrInvalidBody) {
		h.logger.Warn("invalid request body",
			"err", sanitizeError(err),
			"path", c.Request().URL.Path,
		)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msgInvalidBody})
	}

	h.logger.Error("backend unreachable",
		"err", sanitizeError(err),
		"cause", transportCause(err),
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusBadGateway, map[string]string{"error": msgBackendFailed})
}

func isBodyTooLarge(err error) bool {
	var he *echo.HTTPError
	return errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge
}

// transportCause classifies a forwarding failure for logs. Every cause maps
// to the same 502 envelope for the caller.
func transportCause(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.Canceled):
		return "client_disconnected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr):
		return "connection"
	default:
		return "other"
	}
}

// sanitizeError redacts bearer tokens from error messages.
func sanitizeError(err error) string {
	return bearerPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
