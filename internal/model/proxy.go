// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a caller request to be forwarded to the backend.
// Path is the forwarded path below the gateway's proxy prefix, still
// percent-escaped and without a leading slash (e.g. "tasks/5").
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.Reader

	// Credential is the bearer token placed in the Authorization header.
	Credential string
}

// ProxyResponse represents the backend response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser

	// Redirected reports whether a redirect hop was followed to produce this response.
	Redirected bool
}

// EnvelopeKind identifies how a request body is carried to the backend.
type EnvelopeKind int

const (
	// EnvelopeNone is used for methods that carry no body.
	EnvelopeNone EnvelopeKind = iota
	// EnvelopeMultipart carries multipart/form-data parts re-encoded under a fresh boundary.
	EnvelopeMultipart
	// EnvelopeRaw carries the inbound body bytes unchanged.
	EnvelopeRaw
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeMultipart:
		return "multipart"
	case EnvelopeRaw:
		return "raw"
	default:
		return "none"
	}
}

// ContentEnvelope is the serialized request body. It is built once per
// request and replayed as-is if a redirect hop is followed.
type ContentEnvelope struct {
	Kind EnvelopeKind
	// ContentType is set only for multipart envelopes, where it carries the new boundary.
	ContentType string
	Body        []byte
}
