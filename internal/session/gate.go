package session

import (
	"errors"
	"log/slog"
	"net/http"

	"taskapi-gateway/internal/config"
)

var (
	// ErrNoSession is returned when the caller has no application session.
	ErrNoSession = errors.New("session: no application session")
	// ErrNoCredential is returned when a session exists but carries no backend credential.
	ErrNoCredential = errors.New("session: no backend credential")
)

// Verifier decides whether the caller holds an application session.
type Verifier interface {
	Present(r *http.Request) bool
}

// Gate performs the two-stage authentication check: application session
// first, backend credential second. The order is fixed so that callers
// without a session learn nothing about backend credential state.
type Gate struct {
	sessions    Verifier
	credentials *Extractor
	logger      *slog.Logger
}

// NewGate creates a Gate from the configured cookie names.
func NewGate(cfg *config.Config, logger *slog.Logger) *Gate {
	return &Gate{
		sessions:    NewExtractor(cfg.Session.AppCookies),
		credentials: NewExtractor(cfg.Session.CredentialCookies),
		logger:      logger.With("component", "session_gate"),
	}
}

// NewGateWith creates a Gate from an explicit verifier and credential extractor.
func NewGateWith(sessions Verifier, credentials *Extractor, logger *slog.Logger) *Gate {
	return &Gate{
		sessions:    sessions,
		credentials: credentials,
		logger:      logger.With("component", "session_gate"),
	}
}

// Authorize returns the backend credential for r, or ErrNoSession /
// ErrNoCredential. It performs no network calls.
func (g *Gate) Authorize(r *http.Request) (string, error) {
	if !g.sessions.Present(r) {
		return "", ErrNoSession
	}

	credential, source, ok := g.credentials.Extract(r)
	if !ok {
		return "", ErrNoCredential
	}

	// The value itself is never logged.
	g.logger.Debug("credential resolved", "source", source)
	return credential, nil
}
