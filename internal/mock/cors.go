package mock

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// crossOrigin returns the page origin of a request sent to another origin, or
// "" for same-origin and origin-less requests.
func crossOrigin(req Request) string {
	origin := headerValue(req.Headers, "Origin")
	if origin == "" {
		return ""
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" {
		return origin
	}
	if strings.EqualFold(origin, u.Scheme+"://"+u.Host) {
		return ""
	}
	return origin
}

// isPreflight reports whether req is a CORS preflight.
func isPreflight(req Request) bool {
	return req.Method == http.MethodOptions && headerValue(req.Headers, "Access-Control-Request-Method") != ""
}

// preflight answers a CORS preflight for a mocked URL, allowing whatever the
// page asked for.
func preflight(req Request) encoded {
	origin := headerValue(req.Headers, "Origin")
	if origin == "" {
		origin = "*"
	}
	allowHeaders := headerValue(req.Headers, "Access-Control-Request-Headers")
	if allowHeaders == "" {
		allowHeaders = "*"
	}
	methods := "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS"
	if m := strings.ToUpper(headerValue(req.Headers, "Access-Control-Request-Method")); !strings.Contains(methods, m) {
		methods += ", " + m
	}

	h := map[string]string{
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Methods": methods,
		"Access-Control-Allow-Headers": allowHeaders,
		"Access-Control-Max-Age":       "60",
		"Vary":                         "Origin",
	}
	if origin != "*" {
		h["Access-Control-Allow-Credentials"] = "true"
	}
	return encoded{Status: http.StatusNoContent, Headers: sortedHeaders(h)}
}

// allowOrigin adds the headers a cross-origin page needs to read enc, unless
// the fixture already sets its own Access-Control-Allow-Origin.
func allowOrigin(enc encoded, origin string) encoded {
	h := make(map[string]string, len(enc.Headers)+4)
	var exposed []string
	for _, e := range enc.Headers {
		h[e.Name] = e.Value
		if !strings.EqualFold(e.Name, "Content-Type") {
			exposed = append(exposed, e.Name)
		}
	}
	if headerValue(h, "Access-Control-Allow-Origin") != "" {
		return enc
	}

	h["Access-Control-Allow-Origin"] = origin
	h["Access-Control-Allow-Credentials"] = "true"
	if v := headerValue(h, "Vary"); v == "" {
		h["Vary"] = "Origin"
	} else if !strings.Contains(strings.ToLower(v), "origin") {
		setHeader(h, "Vary", v+", Origin")
	}
	if len(exposed) > 0 {
		setDefault(h, "Access-Control-Expose-Headers", strings.Join(exposed, ", "))
	}

	enc.Headers = sortedHeaders(h)
	return enc
}

func headerValue(h map[string]string, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func setHeader(h map[string]string, name, value string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			h[k] = value
			return
		}
	}
	h[name] = value
}

func sortedHeaders(h map[string]string) []header {
	out := make([]header, 0, len(h))
	for name, value := range h {
		out = append(out, header{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
