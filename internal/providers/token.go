package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xjonsson/kin-api-server/internal/engine"
)

// tokenClient is shared by all refresh grants; per-grant deadlines come
// from the provider timeout.
var tokenClient = &http.Client{}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// postTokenRequest performs an OAuth refresh grant against an absolute
// token endpoint, outside the engine: token endpoints have their own base
// URLs and must not recurse into the retry ladder. Credentials travel as a
// form body or as query params depending on the provider; either way the
// form content type is sent.
func postTokenRequest(ctx context.Context, rawURL string, query, form url.Values, timeout time.Duration) (*tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	var body io.Reader
	if len(form) > 0 {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tokenClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &engine.HTTPError{StatusCode: resp.StatusCode, Body: b}
	}
	var tr tokenResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}
