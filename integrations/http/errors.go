package http

import (
	"net/http"
	"strconv"
)

// StatusError reports a non-2xx response as an error. It implements
// classify.HTTPError, so 400/422 classify as PARAM_ERROR and 408/504 as
// TIMEOUT.
type StatusError struct {
	Code   int
	Method string
	URL    string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	msg := "http status " + strconv.Itoa(e.Code)
	if e.Method != "" && e.URL != "" {
		msg = e.Method + " " + e.URL + ": " + msg
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// CheckStatus returns a *StatusError for responses outside 2xx.
func CheckStatus(resp *http.Response) error {
	if resp == nil || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	se := &StatusError{Code: resp.StatusCode}
	if resp.Request != nil {
		se.Method = resp.Request.Method
		if resp.Request.URL != nil {
			se.URL = resp.Request.URL.String()
		}
	}
	return se
}
