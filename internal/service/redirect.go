package service

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"taskapi-gateway/internal/model"
)

// maxDrainBytes bounds how much of a superseded redirect body is read so the
// connection can be reused.
const maxDrainBytes = 64 << 10

// shouldFollowRedirect reports whether a backend response may be replaced by
// one more request to its Location. 307 and 308 preserve method and body for
// any method; 301 and 302 are followed only for GET, because clients rewrite
// other methods on those codes and the gateway must not guess.
func shouldFollowRedirect(method string, status int, location string) bool {
	if location == "" {
		return false
	}
	switch status {
	case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	case http.StatusMovedPermanently, http.StatusFound:
		return method == http.MethodGet
	default:
		return false
	}
}

// resolveRedirect applies the single-hop redirect policy to the first backend
// response. It returns resp untouched unless a hop is taken, in which case the
// identical request (method, headers, serialized body) is sent once to the
// resolved Location and that second response is returned whatever its status.
func (s *ProxyService) resolveRedirect(pr *model.ProxyRequest, target string, header http.Header, env model.ContentEnvelope, resp *model.ProxyResponse) (*model.ProxyResponse, error) {
	location := resp.Header.Get("Location")
	if !shouldFollowRedirect(pr.Method, resp.StatusCode, location) {
		return resp, nil
	}

	next, ok := s.resolveLocation(target, location)
	if !ok {
		s.logger.Debug("redirect not followed",
			"status", resp.StatusCode,
			"reason", "location outside backend origin",
		)
		return resp, nil
	}

	drainAndClose(resp.Body)

	s.logger.Debug("following backend redirect",
		"method", pr.Method,
		"status", resp.StatusCode,
		"path", pr.Path,
	)
	if s.metrics != nil {
		s.metrics.RedirectsFollowed.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	followed, err := s.send(pr, next, header, env)
	if err != nil {
		return nil, err
	}
	followed.Redirected = true
	return followed, nil
}

// resolveLocation resolves a Location value against the request URL. Targets
// on another host are refused so the bearer credential never leaves the
// backend. A same-host upgrade from http to https is allowed, as answered by
// backends behind TLS termination; a downgrade is not.
func (s *ProxyService) resolveLocation(target, location string) (string, bool) {
	base, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	next, err := base.Parse(location)
	if err != nil {
		return "", false
	}
	if !s.sameBackend(next) {
		return "", false
	}
	return next.String(), true
}

func (s *ProxyService) sameBackend(u *url.URL) bool {
	if u.Scheme == s.origin.Scheme {
		return u.Host == s.origin.Host
	}
	if s.origin.Scheme == "http" && u.Scheme == "https" {
		return strings.EqualFold(u.Hostname(), s.origin.Hostname())
	}
	return false
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	_ = body.Close()
}
