package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Request is the intercepted request handed to a Responder.
type Request struct {
	Method       string
	URL          string
	Headers      map[string]string
	PostData     string
	ResourceType string
}

// Responder produces the fixture for a matched request. It must not depend on
// side effects; an error fails the request so the page observes it.
type Responder func(ctx context.Context, req Request) (Response, error)

// Response is a synthetic response. A zero Status means 200. A Body of type
// []byte, string or json.RawMessage is sent as is; anything else is encoded
// as JSON with a Content-Type of application/json unless one is set.
//
// Build responses with JSON, Text or Status and the With* methods; every
// method returns a copy, so a Response can be shared between rules.
type Response struct {
	Status  int
	Headers map[string]string
	Body    any
}

// JSON returns a 200 response with body encoded as JSON.
func JSON(body any) Response {
	return Response{Status: http.StatusOK, Body: body}
}

// Text returns a 200 plain text response.
func Text(body string) Response {
	return Response{
		Status:  http.StatusOK,
		Headers: map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:    body,
	}
}

// Status returns an empty response with the given status code.
func Status(code int) Response {
	return Response{Status: code}
}

// WithStatus returns a copy with the status replaced.
func (r Response) WithStatus(code int) Response {
	r.Headers = copyHeaders(r.Headers)
	r.Status = code
	return r
}

// WithHeader returns a copy with the header set.
func (r Response) WithHeader(name, value string) Response {
	r.Headers = copyHeaders(r.Headers)
	r.Headers[name] = value
	return r
}

// Static returns a Responder that always answers with r.
func Static(r Response) Responder {
	return func(context.Context, Request) (Response, error) {
		return r, nil
	}
}

type header struct {
	Name  string
	Value string
}

type encoded struct {
	Status  int
	Headers []header
	Body    []byte
}

// encode renders the response into its wire form. Headers are sorted by name.
func (r Response) encode() (encoded, error) {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 100 || status > 599 {
		return encoded{}, fmt.Errorf("invalid status %d", status)
	}

	headers := copyHeaders(r.Headers)
	var body []byte
	switch b := r.Body.(type) {
	case nil:
	case []byte:
		body = b
	case string:
		body = []byte(b)
	case json.RawMessage:
		body = b
		setDefault(headers, "Content-Type", "application/json")
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return encoded{}, fmt.Errorf("encoding body: %w", err)
		}
		body = data
		setDefault(headers, "Content-Type", "application/json")
	}

	return encoded{Status: status, Headers: sortedHeaders(headers), Body: body}, nil
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

func setDefault(h map[string]string, name, value string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			return
		}
	}
	h[name] = value
}
