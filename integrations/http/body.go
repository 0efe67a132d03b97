package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// exchange builds the {"status","headers","body"} value classify.HTTPRule
// navigates.
func exchange(status int, header http.Header, body []byte, captured bool) map[string]any {
	out := map[string]any{
		"status":  status,
		"headers": flatten(header),
	}
	if captured {
		out["body"] = decodeBody(header, body)
	}
	return out
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func decodeBody(h http.Header, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if isJSON(h.Get("Content-Type")) && json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || (len(mt) > 5 && mt[len(mt)-5:] == "+json")
}

// replayBody serves the captured prefix and then the rest of the original
// body. Close closes the original.
type replayBody struct {
	io.Reader
	io.Closer
}

// peekBody reads a response body of known length up to limit and puts it
// back so the caller still sees the full stream.
func peekBody(resp *http.Response, limit int64) ([]byte, bool) {
	if resp == nil {
		return nil, false
	}
	buf, body, ok := peek(resp.Body, resp.ContentLength, limit)
	resp.Body = body
	return buf, ok
}

// peekForm parses a URL-encoded request body of known length up to limit
// without consuming it. It returns nil for any other body.
func peekForm(r *http.Request, limit int64) url.Values {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/x-www-form-urlencoded" {
		return nil
	}
	buf, body, ok := peek(r.Body, r.ContentLength, limit)
	r.Body = body
	if !ok {
		return nil
	}
	form, err := url.ParseQuery(string(buf))
	if err != nil {
		return nil
	}
	return form
}

func peek(body io.ReadCloser, length, limit int64) ([]byte, io.ReadCloser, bool) {
	if body == nil || body == http.NoBody || limit <= 0 {
		return nil, body, false
	}
	if length < 0 || length > limit {
		return nil, body, false
	}
	buf, err := io.ReadAll(io.LimitReader(body, limit))
	replay := &replayBody{Reader: io.MultiReader(bytes.NewReader(buf), body), Closer: body}
	if err != nil {
		return nil, replay, false
	}
	return buf, replay, true
}
