// Package engine executes authenticated outbound calls against provider
// REST APIs, transparently handling transient timeouts, expired-credential
// refresh (coordinated to a single flight across workers) and demotion of
// permanently dead sources to disconnected.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xjonsson/kin-api-server/internal/model"
	"github.com/xjonsson/kin-api-server/internal/store"
)

const (
	defaultMaxAttempts  = 3
	defaultBackoffDelay = time.Second
)

var errAlreadyRefreshing = errors.New("already refreshing token")

// Provider is the capability record specializing the engine for one
// provider: base URL, timeout, auth-option construction, credential-error
// classification and (when the provider supports it) the refresh grant.
type Provider struct {
	Name    string
	BaseURL string
	Timeout time.Duration

	// UseRefreshToken enables the refresh path on 401 responses.
	UseRefreshToken bool

	// BackoffDelay seeds the Fibonacci retry delays; zero means 1s.
	BackoffDelay time.Duration
	// MaxAttempts bounds the retry ladder; zero means 3.
	MaxAttempts int

	// BuildRequestOptions merges the provider's auth scheme (headers, query
	// params, form fields) into the caller's options.
	BuildRequestOptions func(accessToken string, overrides RequestOptions) RequestOptions

	// IsInvalidCreds classifies an error as "credentials permanently
	// invalid" using the provider's own error envelope. Nil means a plain
	// 401 check.
	IsInvalidCreds func(err error) bool

	// RefreshToken performs the provider's OAuth refresh grant and updates
	// the in-memory source's credentials and status. Required when
	// UseRefreshToken is set.
	RefreshToken func(ctx context.Context, rc *RequestContext, src *model.Source) error

	// HTTPClient overrides the default client (tests). The default applies
	// Timeout.
	HTTPClient *http.Client

	// sleep is stubbed in tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error

	initClient sync.Once
	client     *http.Client
}

func (p *Provider) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}

func (p *Provider) backoffDelay() time.Duration {
	if p.BackoffDelay > 0 {
		return p.BackoffDelay
	}
	return defaultBackoffDelay
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	p.initClient.Do(func() {
		p.client = &http.Client{Timeout: p.Timeout}
	})
	return p.client
}

func (p *Provider) sleepFn() func(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep
	}
	return sleepContext
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fibDelay returns the backoff before retry number attempt: the Fibonacci
// sequence seeded [0, d], i.e. d, d, 2d, 3d, 5d, ... Deterministic, no
// jitter.
func fibDelay(attempt int, d time.Duration) time.Duration {
	a, b := time.Duration(0), d
	for i := 0; i < attempt; i++ {
		a, b = b, a+b
	}
	return b
}

// Request executes calls against one provider on behalf of one of the
// request user's sources.
type Request struct {
	p        *Provider
	rc       *RequestContext
	sourceID string
}

// NewRequest binds a provider to the request context and source.
func NewRequest(p *Provider, rc *RequestContext, sourceID string) *Request {
	return &Request{p: p, rc: rc, sourceID: sourceID}
}

func (r *Request) source() *model.Source {
	return r.rc.User().GetSource(r.sourceID)
}

// Do executes one provider call through the retry ladder and returns the
// raw response body. After the ladder gives up, a final classification pass
// demotes the source to disconnected when the provider confirmed the
// credentials are dead.
func (r *Request) Do(ctx context.Context, path string, opts RequestOptions) ([]byte, error) {
	body, err := r.do(ctx, path, opts, 0)
	if err == nil {
		return body, nil
	}
	if r.invalidCreds(err) {
		return nil, r.disconnect(ctx)
	}
	return nil, err
}

// do runs a single attempt and dispatches the failure, in order: retry
// budget exhausted, unauthorized with refresh support, timeout, re-raise.
func (r *Request) do(ctx context.Context, path string, opts RequestOptions, attempt int) ([]byte, error) {
	src := r.source()
	if src == nil {
		return nil, model.NewSourceNotFoundError(r.sourceID)
	}
	merged := r.p.BuildRequestOptions(src.AccessToken, opts)

	r.rc.OutboundRequests++
	r.rc.Metrics.RecordOutboundRequest(r.p.Name)
	method := merged.Method
	if method == "" {
		method = http.MethodGet
	}
	r.rc.logger().Debug("outbound request",
		"correlation_id", r.rc.ID,
		"n", r.rc.OutboundRequests,
		"method", method,
		"url", r.p.BaseURL+path)

	body, err := r.send(ctx, path, merged)
	if err == nil {
		return body, nil
	}

	next := attempt + 1
	if next >= r.p.maxAttempts() {
		r.rc.logger().Error("exhausted retry budget",
			"correlation_id", r.rc.ID,
			"user_id", r.rc.User().ID(),
			"source_id", r.sourceID)
		return nil, err
	}

	if StatusCode(err) == http.StatusUnauthorized && r.p.UseRefreshToken {
		if rerr := r.tryRefreshingToken(ctx, next); rerr != nil {
			return nil, rerr
		}
		return r.do(ctx, path, opts, next)
	}

	if isTimeout(err) {
		r.rc.Metrics.RecordRetry(r.p.Name, "timeout")
		if derr := r.delayedRetry(ctx, next, err); derr != nil {
			return nil, derr
		}
		return r.do(ctx, path, opts, next)
	}

	return nil, err
}

// send performs the HTTP exchange for one attempt.
func (r *Request) send(ctx context.Context, path string, opts RequestOptions) ([]byte, error) {
	rawURL := r.p.BaseURL + path
	if len(opts.Query) > 0 {
		rawURL += "?" + opts.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case opts.JSON != nil:
		b, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case len(opts.Form) > 0:
		body = strings.NewReader(opts.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := r.p.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: b}
	}
	return b, nil
}

// tryRefreshingToken asks the coordinator for the refresh slot. Winning it
// runs the provider's refresh grant and persists the outcome; losing it
// backs off and reloads the user so a refresh completed elsewhere is
// picked up.
func (r *Request) tryRefreshingToken(ctx context.Context, attempt int) error {
	// Checked before claiming the refresh slot: failing after the claim
	// would leave the stored status stuck at refreshing.
	if r.p.RefreshToken == nil {
		return fmt.Errorf("provider %s has no refresh grant", r.p.Name)
	}

	sig, err := r.rc.User().ShouldRefresh(ctx, r.sourceID)
	if err != nil {
		return err
	}
	if sig == store.AlreadyRefreshing {
		r.rc.Metrics.RecordRetry(r.p.Name, "refresh_wait")
		return r.delayedRetry(ctx, attempt, errAlreadyRefreshing)
	}

	src := r.source()
	if err := r.p.RefreshToken(ctx, r.rc, src); err != nil {
		r.rc.logger().Warn("failed to refresh token",
			"correlation_id", r.rc.ID,
			"source_id", r.sourceID)
		r.rc.Metrics.RecordTokenRefresh(r.p.Name, "error")
		// Reset the coordinator state so a future call may retry;
		// leaving `refreshing` behind would deadlock every caller.
		src.Status = model.StatusConnected
		if aerr := r.rc.User().AddSource(ctx, src, false); aerr == nil {
			if serr := r.rc.User().Save(ctx); serr != nil {
				r.rc.logger().Error("failed to reset source status after refresh failure",
					"correlation_id", r.rc.ID,
					"source_id", r.sourceID,
					"error", serr)
			}
		}
		return err
	}
	r.rc.Metrics.RecordTokenRefresh(r.p.Name, "ok")
	if err := r.rc.User().AddSource(ctx, src, false); err != nil {
		return err
	}
	return r.rc.User().Save(ctx)
}

// delayedRetry sleeps the Fibonacci backoff for this attempt, then reloads
// the user to observe tokens refreshed by another worker.
func (r *Request) delayedRetry(ctx context.Context, attempt int, cause error) error {
	delay := fibDelay(attempt, r.p.backoffDelay())
	r.rc.logger().Debug("retrying after delay",
		"correlation_id", r.rc.ID,
		"cause", cause.Error(),
		"delay", delay)
	if err := r.p.sleepFn()(ctx, delay); err != nil {
		return err
	}
	u, err := r.rc.User().Reload(ctx)
	if err != nil {
		return err
	}
	r.rc.SetUser(u)
	return nil
}

func (r *Request) invalidCreds(err error) bool {
	if r.p.IsInvalidCreds != nil {
		return r.p.IsInvalidCreds(err)
	}
	return StatusCode(err) == http.StatusUnauthorized
}

// disconnect demotes the source, persists it and surfaces the typed error
// the routing layer maps for clients.
func (r *Request) disconnect(ctx context.Context) error {
	if src := r.source(); src != nil {
		src.Status = model.StatusDisconnected
		if err := r.rc.User().AddSource(ctx, src, false); err == nil {
			if serr := r.rc.User().Save(ctx); serr != nil {
				r.rc.logger().Error("failed to persist disconnected source",
					"correlation_id", r.rc.ID,
					"source_id", r.sourceID,
					"error", serr)
			}
		}
	}
	r.rc.Metrics.RecordDisconnect(r.p.Name)
	return model.NewDisconnectedSourceError(r.sourceID)
}
