package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const maxResponseBody = 1 << 20

// Options are the transport settings shared by every adapter.
type Options struct {
	Timeout            time.Duration
	RPS                float64
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	HTTPClient *http.Client // optional; tests inject httptest clients
	Logger     *slog.Logger
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.BreakerMaxFailures == 0 {
		o.BreakerMaxFailures = 5
	}
	if o.BreakerOpenTimeout <= 0 {
		o.BreakerOpenTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// httpClient is the transport every adapter goes through: throttle, circuit
// breaker, timeout, and translation of transport failures into ProviderError.
type httpClient struct {
	kind    Kind
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	errs    errorMap
	logger  *slog.Logger

	// extracts the provider's error code from a non-2xx body
	decodeCode func(body []byte) string
}

func newHTTPClient(kind Kind, baseURL string, errs errorMap, decodeCode func([]byte) string, o Options) *httpClient {
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	// copy so the shared client's timeout is not mutated
	c := *hc
	c.Timeout = o.Timeout

	limit := rate.Inf
	burst := 1
	if o.RPS > 0 {
		limit = rate.Limit(o.RPS)
		if b := int(o.RPS); b > 1 {
			burst = b
		}
	}

	maxFailures := o.BreakerMaxFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(kind),
		MaxRequests: 1,
		Timeout:     o.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// business declines must not open the breaker
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			pe, ok := AsProviderError(err)
			return ok && pe.HTTPStatusHint < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.Logger.Warn("provider circuit state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})

	if decodeCode == nil {
		decodeCode = func([]byte) string { return "" }
	}

	return &httpClient{
		kind:       kind,
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &c,
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    breaker,
		errs:       errs,
		logger:     o.Logger,
		decodeCode: decodeCode,
	}
}

type request struct {
	method      string
	path        string
	header      http.Header
	body        []byte
	contentType string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *httpClient) fail(code string, cause error) *ProviderError {
	return newError(c.kind, c.errs, code, cause)
}

func (c *httpClient) do(ctx context.Context, req request) (response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait gives up early when the deadline would pass before a token frees up
		if _, ok := ctx.Deadline(); ok && !errors.Is(ctx.Err(), context.Canceled) {
			return response{}, c.fail(CodeTimeout, err)
		}
		return response{}, c.transportError(err)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.roundTrip(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return response{}, c.fail(CodeCircuitOpen, err)
		}
		return response{}, err
	}
	return out.(response), nil
}

func (c *httpClient) roundTrip(ctx context.Context, req request) (response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return response{}, c.fail(CodeUnknown, err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if req.contentType != "" {
		hr.Header.Set("Content-Type", req.contentType)
	}
	hr.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(hr)
	if err != nil {
		return response{}, c.transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return response{}, c.transportError(err)
	}

	c.logger.DebugContext(ctx, "provider_call",
		"provider", string(c.kind),
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	out := response{status: resp.StatusCode, header: resp.Header, body: raw}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := c.decodeCode(raw)
		pe := c.fail(code, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(raw), 512)))
		if code == "" && resp.StatusCode >= 500 {
			// provider outage without a readable code
			pe.Code = "HTTP_" + fmt.Sprint(resp.StatusCode)
		}
		return out, pe
	}
	return out, nil
}

func (c *httpClient) transportError(err error) *ProviderError {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return c.fail(CodeTimeout, err)
	}
	return c.fail(CodeNetwork, err)
}

// doJSON sends in as a JSON body (when non-nil) and decodes a 2xx answer into out.
func (c *httpClient) doJSON(ctx context.Context, method, path string, header http.Header, in, out any) (response, error) {
	req := request{method: method, path: path, header: header}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return response{}, c.fail(CodeUnknown, err)
		}
		req.body = b
		req.contentType = "application/json"
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return resp, err
	}
	return resp, c.decodeInto(resp, out)
}

// doForm sends form as an x-www-form-urlencoded body and decodes a 2xx JSON answer into out.
func (c *httpClient) doForm(ctx context.Context, method, path string, header http.Header, form url.Values, out any) (response, error) {
	req := request{method: method, path: path, header: header}
	if form != nil {
		req.body = []byte(form.Encode())
		req.contentType = "application/x-www-form-urlencoded"
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return resp, err
	}
	return resp, c.decodeInto(resp, out)
}

func (c *httpClient) decodeInto(resp response, out any) error {
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return c.fail(CodeUnknown, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// jsonCode reads the first non-empty string among the given top-level keys.
func jsonCode(keys ...string) func([]byte) string {
	return func(body []byte) string {
		var m map[string]any
		if err := json.Unmarshal(body, &m); err != nil {
			return ""
		}
		for _, k := range keys {
			if s, ok := m[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}
}

// tokenSource caches a bearer token until shortly before it expires.
type tokenSource struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
	fetch  func(ctx context.Context) (token string, ttl time.Duration, err error)
}

const tokenLeeway = 30 * time.Second

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Add(tokenLeeway).Before(t.expiry) {
		return t.token, nil
	}
	tok, ttl, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.token = tok
	t.expiry = t.now().Add(ttl)
	return tok, nil
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func rawOrEmpty(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
