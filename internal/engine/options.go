package engine

import (
	"net/http"
	"net/url"
)

// RequestOptions describes one outbound provider call. Providers merge
// their auth scheme into these in BuildRequestOptions; the caller's values
// win on conflict.
type RequestOptions struct {
	// Method defaults to GET when empty.
	Method  string
	Query   url.Values
	Form    url.Values
	JSON    any
	Headers http.Header
}

// Merge overlays the caller's options onto a provider's base options.
// Query, form and header values union, with overrides winning per key;
// method and JSON body are taken from overrides when set.
func Merge(base, overrides RequestOptions) RequestOptions {
	out := RequestOptions{
		Method:  base.Method,
		Query:   mergeValues(base.Query, overrides.Query),
		Form:    mergeValues(base.Form, overrides.Form),
		Headers: mergeHeaders(base.Headers, overrides.Headers),
		JSON:    base.JSON,
	}
	if overrides.Method != "" {
		out.Method = overrides.Method
	}
	if overrides.JSON != nil {
		out.JSON = overrides.JSON
	}
	return out
}

func mergeValues(base, overrides url.Values) url.Values {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	out := url.Values{}
	for k, vs := range base {
		out[k] = append([]string(nil), vs...)
	}
	for k, vs := range overrides {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func mergeHeaders(base, overrides http.Header) http.Header {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	out := http.Header{}
	for k, vs := range base {
		out[k] = append([]string(nil), vs...)
	}
	for k, vs := range overrides {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
