package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskapi-gateway/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse describes how the gateway forwards calls. It carries no
// credential or session data.
type statusResponse struct {
	Status         string         `json:"status"`
	Version        string         `json:"version"`
	BackendOrigin  string         `json:"backend_origin"`
	ProxyPrefix    string         `json:"proxy_prefix"`
	APIPrefix      string         `json:"api_prefix"`
	TimeoutSeconds int            `json:"backend_timeout_seconds"`
	BodyMaxBytes   int64          `json:"body_max_bytes"`
	Redirects      redirectPolicy `json:"redirects"`
}

type redirectPolicy struct {
	MaxHops      int   `json:"max_hops"`
	AnyMethod    []int `json:"any_method"`
	GETOnly      []int `json:"get_only"`
	SameHostOnly bool  `json:"same_host_only"`
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := statusResponse{
		Status:         "ok",
		Version:        string(h.version),
		BackendOrigin:  h.cfg.Backend.Origin,
		ProxyPrefix:    ProxyPrefix,
		APIPrefix:      h.cfg.Backend.APIPrefix,
		TimeoutSeconds: h.cfg.Backend.TimeoutSeconds,
		BodyMaxBytes:   h.cfg.Server.BodyMaxBytes,
		Redirects: redirectPolicy{
			MaxHops:      1,
			AnyMethod:    []int{http.StatusTemporaryRedirect, http.StatusPermanentRedirect},
			GETOnly:      []int{http.StatusMovedPermanently, http.StatusFound},
			SameHostOnly: true,
		},
	}
	return c.JSON(http.StatusOK, resp)
}
