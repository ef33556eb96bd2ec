package action

import (
	"bytes"
	"io"
	"maps"
	"strings"

	"github.com/roach88/dstoolkit/internal/collection"
)

// ResultBuilder formats what an action returns.
type ResultBuilder struct {
	headers map[string]string
}

// Option tweaks a success or error result.
type Option func(*collection.ActionResult)

// HTML renders the message as HTML.
func HTML() Option {
	return func(r *collection.ActionResult) { r.Format = "html" }
}

// Invalidate lists the relations the front end must refresh.
func Invalidate(relations ...string) Option {
	return func(r *collection.ActionResult) { r.Invalidated = append(r.Invalidated, relations...) }
}

// SetHeader adds a response header to every result built afterwards.
func (b *ResultBuilder) SetHeader(name, value string) *ResultBuilder {
	if b.headers == nil {
		b.headers = map[string]string{}
	}
	b.headers[name] = value
	return b
}

func (b *ResultBuilder) result(r collection.ActionResult) collection.ActionResult {
	r.ResponseHeaders = maps.Clone(b.headers)
	if r.ResponseHeaders == nil {
		r.ResponseHeaders = map[string]string{}
	}
	return r
}

func (b *ResultBuilder) Success(message string, opts ...Option) collection.ActionResult {
	if message == "" {
		message = string(collection.ResultSuccess)
	}
	r := collection.ActionResult{Type: collection.ResultSuccess, Message: message, Format: "text", Invalidated: []string{}}
	for _, opt := range opts {
		opt(&r)
	}
	return b.result(r)
}

func (b *ResultBuilder) Error(message string, opts ...Option) collection.ActionResult {
	if message == "" {
		message = string(collection.ResultError)
	}
	r := collection.ActionResult{Type: collection.ResultError, Message: message, Format: "text"}
	for _, opt := range opts {
		opt(&r)
	}
	return b.result(r)
}

// Webhook asks the front end to call url. method defaults to POST.
func (b *ResultBuilder) Webhook(url, method string, headers map[string]string, body any) collection.ActionResult {
	if method == "" {
		method = "POST"
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if body == nil {
		body = map[string]any{}
	}
	return b.result(collection.ActionResult{Type: collection.ResultWebhook, URL: url, Method: method, Headers: headers, Body: body})
}

// File returns a download. content may be a string, a byte slice or a
// reader.
func (b *ResultBuilder) File(content any, name, mimeType string) collection.ActionResult {
	if name == "" {
		name = "file"
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}
	var stream io.Reader
	switch c := content.(type) {
	case string:
		stream = strings.NewReader(c)
	case []byte:
		stream = bytes.NewReader(c)
	case io.Reader:
		stream = c
	default:
		stream = strings.NewReader("")
	}
	return b.result(collection.ActionResult{Type: collection.ResultFile, Name: name, MimeType: mimeType, Stream: stream})
}

func (b *ResultBuilder) Redirect(path string) collection.ActionResult {
	return b.result(collection.ActionResult{Type: collection.ResultRedirect, Path: path})
}
