package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"taskapi-gateway/internal/model"
)

// bodyMethods are the methods whose inbound body is read and forwarded.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/")
}

// BuildEnvelope serializes the inbound body once, according to its content type.
//
// Multipart bodies are re-encoded part by part under a fresh boundary: part
// headers (field names, filenames, part content types) and part bytes are
// copied unchanged. Every other content type is forwarded as the raw bytes.
// Methods other than POST, PUT and PATCH never read the body.
func BuildEnvelope(method string, header http.Header, body io.Reader) (model.ContentEnvelope, error) {
	if !bodyMethods[method] || body == nil {
		return model.ContentEnvelope{Kind: model.EnvelopeNone}, nil
	}

	if ct := header.Get("Content-Type"); isMultipart(ct) {
		return buildMultipart(ct, body)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return model.ContentEnvelope{}, fmt.Errorf("read body: %w", err)
	}
	return model.ContentEnvelope{Kind: model.EnvelopeRaw, Body: data}, nil
}

func buildMultipart(contentType string, body io.Reader) (model.ContentEnvelope, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return model.ContentEnvelope{}, fmt.Errorf("parse content type: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return model.ContentEnvelope{}, errors.New("multipart content type without boundary")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mr := multipart.NewReader(body, boundary)

	for {
		// NextRawPart keeps Content-Transfer-Encoding untouched.
		part, err := mr.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.ContentEnvelope{}, fmt.Errorf("read multipart part: %w", err)
		}

		w, err := mw.CreatePart(part.Header)
		if err != nil {
			return model.ContentEnvelope{}, fmt.Errorf("write multipart part: %w", err)
		}
		if _, err := io.Copy(w, part); err != nil {
			return model.ContentEnvelope{}, fmt.Errorf("copy multipart part %q: %w", part.FormName(), err)
		}
		_ = part.Close()
	}
	if err := mw.Close(); err != nil {
		return model.ContentEnvelope{}, fmt.Errorf("close multipart writer: %w", err)
	}

	return model.ContentEnvelope{
		Kind:        model.EnvelopeMultipart,
		ContentType: mime.FormatMediaType(mediaType, map[string]string{"boundary": mw.Boundary()}),
		Body:        buf.Bytes(),
	}, nil
}
