// Package service implements the core gateway forwarding logic.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"taskapi-gateway/internal/client"
	"taskapi-gateway/internal/config"
	"taskapi-gateway/internal/metrics"
	"taskapi-gateway/internal/model"
)

var (
	// ErrMissingCredential is returned when Forward is called without a bearer credential.
	ErrMissingCredential = errors.New("backend credential required")
	// ErrInvalidBody is returned when the inbound body cannot be read or parsed.
	ErrInvalidBody = errors.New("invalid request body")
)

// forwardableResponseHeaders are the only response headers relayed to the caller.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":        true,
	"Content-Length":      true,
	"Cache-Control":       true,
	"Content-Disposition": true,
	"Location":            true,
}

const userAgent = "taskapi-gateway/1.0"

// ProxyService handles the forwarding logic for gateway requests.
type ProxyService struct {
	client    *client.BackendClient
	logger    *slog.Logger
	metrics   *metrics.Metrics
	origin    *url.URL
	apiPrefix string
}

// NewProxyService creates a ProxyService bound to the configured backend origin.
// The metrics parameter is optional.
func NewProxyService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	u, err := url.Parse(cfg.Backend.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse backend origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend origin %q must be absolute", cfg.Backend.Origin)
	}

	prefix := strings.TrimRight(cfg.Backend.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}

	return &ProxyService{
		client:    c,
		logger:    logger.With("component", "proxy_service"),
		metrics:   m,
		origin:    &url.URL{Scheme: u.Scheme, Host: u.Host},
		apiPrefix: prefix,
	}, nil
}

// Forward sends a ProxyRequest to the backend and returns the final response,
// after at most one redirect hop. The caller is responsible for closing the
// response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if pr.Credential == "" {
		return nil, ErrMissingCredential
	}

	env, err := BuildEnvelope(pr.Method, pr.Header, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	target := s.buildBackendURL(pr.Path, pr.RawQuery)
	header := s.buildRequestHeaders(pr.Header, pr.Credential, env)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"envelope", env.Kind.String(),
	)

	resp, err := s.send(pr, target, header, env)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}

	resp, err = s.resolveRedirect(pr, target, header, env, resp)
	if err != nil {
		return nil, fmt.Errorf("follow backend redirect: %w", err)
	}

	resp.Header = filterResponseHeaders(resp.Header)
	return resp, nil
}

func (s *ProxyService) send(pr *model.ProxyRequest, target string, header http.Header, env model.ContentEnvelope) (*model.ProxyResponse, error) {
	var body io.Reader = http.NoBody
	if len(env.Body) > 0 {
		body = bytes.NewReader(env.Body)
	}
	return s.client.DoStream(pr.Ctx, pr.Method, target, header.Clone(), body)
}

// buildBackendURL maps a forwarded, still-escaped path onto the backend API
// prefix. A top-level collection path ("tasks") always gets exactly one
// trailing slash so the backend does not answer with its own slash redirect;
// nested paths keep the caller's trailing slash, if any. Escaped slashes
// ("tasks%2F5") belong to their segment and do not make a path nested.
func (s *ProxyService) buildBackendURL(path, rawQuery string) string {
	trimmed := strings.Trim(path, "/")
	trailing := strings.HasSuffix(path, "/")

	p := s.apiPrefix + "/" + trimmed
	if trimmed != "" && (isCollectionPath(trimmed) || trailing) {
		p += "/"
	}

	u := *s.origin
	u.Path = p
	if decoded, err := url.PathUnescape(p); err == nil {
		u.Path = decoded
		u.RawPath = p
	}
	u.RawQuery = rawQuery
	return u.String()
}

func isCollectionPath(trimmed string) bool {
	return !strings.Contains(trimmed, "/")
}

func (s *ProxyService) buildRequestHeaders(src http.Header, credential string, env model.ContentEnvelope) http.Header {
	dst := make(http.Header)
	dst.Set("Authorization", "Bearer "+credential)

	switch env.Kind {
	case model.EnvelopeMultipart:
		dst.Set("Content-Type", env.ContentType)
	default:
		if ct := src.Get("Content-Type"); ct != "" && !isMultipart(ct) {
			dst.Set("Content-Type", ct)
		}
	}

	if accept := src.Values("Accept"); len(accept) > 0 {
		dst["Accept"] = accept
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	return dst
}
