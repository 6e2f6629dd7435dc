package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Devendrasinghadiya/dekhomovie/internal/metrics"
)

const imageBase = "https://image.tmdb.org/t/p/w500"

var (
	ErrNotFound     = errors.New("tmdb: not found")
	ErrUnauthorized = errors.New("tmdb: request not authorized")
	ErrUpstream     = errors.New("tmdb: upstream request failed")
	// ErrNoTitle is returned by Lookup when the provider answers but the
	// payload has nothing to display.
	ErrNoTitle = fmt.Errorf("%w: no title in payload", ErrNotFound)
)

const (
	ProxyOff      = "off"
	ProxyAlways   = "always"
	ProxyFallback = "fallback"
)

type Options struct {
	APIKey    string
	APIBase   string
	ProxyURL  string
	ProxyMode string

	Attempts   int
	BaseDelay  time.Duration
	MaxElapsed time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type Client struct {
	apiKey    string
	apiBase   string
	proxyURL  string
	proxyMode string

	attempts   int
	baseDelay  time.Duration
	maxElapsed time.Duration

	hc      *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:     opts.APIKey,
		apiBase:    strings.TrimRight(opts.APIBase, "/"),
		proxyURL:   opts.ProxyURL,
		proxyMode:  opts.ProxyMode,
		attempts:   opts.Attempts,
		baseDelay:  opts.BaseDelay,
		maxElapsed: opts.MaxElapsed,
		hc:         opts.HTTPClient,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	if c.apiBase == "" {
		c.apiBase = "https://api.themoviedb.org/3"
	}
	if c.proxyMode == "" || c.proxyURL == "" {
		c.proxyMode = ProxyOff
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.baseDelay <= 0 {
		c.baseDelay = time.Second
	}
	if c.maxElapsed <= 0 {
		c.maxElapsed = 15 * time.Second
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: 9 * time.Second}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// ImageURL returns the w500 poster URL for a poster path, or "" without one.
func ImageURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http") {
		return path
	}
	return imageBase + path
}

// Search runs a kind-specific title search. An empty page is not an error.
func (c *Client) Search(ctx context.Context, kind Kind, query string, page int) (*Page, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	return c.search(ctx, "/search/"+string(kind), kind, query, page, false)
}

// SearchMulti searches movies and shows together. Only recognized kinds that
// carry a poster survive.
func (c *Client) SearchMulti(ctx context.Context, query string, page int) (*Page, error) {
	return c.search(ctx, "/search/multi", "", query, page, true)
}

func (c *Client) search(ctx context.Context, path string, kind Kind, query string, page int, needPoster bool) (*Page, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("include_adult", "false")

	var raw rawPage
	if err := c.get(ctx, path, q, &raw); err != nil {
		return nil, err
	}

	out := &Page{Page: raw.Page, TotalPages: raw.TotalPages, Results: make([]Media, 0, len(raw.Results))}
	if out.Page == 0 {
		out.Page = page
	}
	for _, r := range raw.Results {
		m, ok := r.normalize(kind)
		if !ok {
			continue
		}
		if needPoster && m.Poster == "" {
			continue
		}
		out.Results = append(out.Results, m)
	}
	return out, nil
}

// Lookup fetches one title by provider id.
func (c *Client) Lookup(ctx context.Context, kind Kind, id int) (*Media, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	if id <= 0 {
		return nil, ErrNotFound
	}
	var raw rawMedia
	if err := c.get(ctx, fmt.Sprintf("/%s/%d", kind, id), nil, &raw); err != nil {
		return nil, err
	}
	if raw.ID == 0 {
		raw.ID = id
	}
	m, ok := raw.normalize(kind)
	if !ok {
		return nil, ErrNoTitle
	}
	return &m, nil
}

// FindByExternalID resolves an IMDb id, preferring movie matches.
func (c *Client) FindByExternalID(ctx context.Context, externalID string) (*Media, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrNotFound
	}
	q := url.Values{}
	q.Set("external_source", "imdb_id")

	var raw rawFind
	if err := c.get(ctx, "/find/"+url.PathEscape(externalID), q, &raw); err != nil {
		return nil, err
	}
	for _, r := range raw.MovieResults {
		if m, ok := r.normalize(KindMovie); ok {
			return &m, nil
		}
	}
	for _, r := range raw.TVResults {
		if m, ok := r.normalize(KindTV); ok {
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	target := c.apiBase + path + "?" + q.Encode()

	var body []byte
	var err error
	switch c.proxyMode {
	case ProxyAlways:
		body, err = c.fetch(ctx, path, "proxy", c.proxied(target))
	case ProxyFallback:
		body, err = c.fetch(ctx, path, "direct", target)
		if err != nil && !errors.Is(err, ErrNotFound) && ctx.Err() == nil {
			c.log.Warn("direct request failed, retrying through proxy", zap.String("path", path), zap.Error(err))
			var perr error
			body, perr = c.fetch(ctx, path, "proxy", c.proxied(target))
			if perr != nil {
				err = fmt.Errorf("%w (direct: %v)", perr, err)
			} else {
				err = nil
			}
		}
	default:
		body, err = c.fetch(ctx, path, "direct", target)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

func (c *Client) proxied(target string) string {
	return c.proxyURL + url.QueryEscape(target)
}

// fetch performs one GET with bounded retries. route is "direct" or "proxy"
// and only feeds logs and metrics.
func (c *Client) fetch(ctx context.Context, path, route, u string) ([]byte, error) {
	start := c.now()
	delay := c.baseDelay
	var lastErr error
	attempt := 1
	for ; ; attempt++ {
		body, retry, err := c.do(ctx, u)
		if err == nil {
			c.metrics.UpstreamRequest(route, "ok")
			return body, nil
		}
		lastErr = err
		if !retry {
			c.metrics.UpstreamRequest(route, resultLabel(err))
			return nil, err
		}
		if attempt >= c.attempts || c.now().Sub(start)+delay > c.maxElapsed {
			break
		}
		c.log.Warn("tmdb request failed, backing off",
			zap.String("path", path),
			zap.String("route", route),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if serr := c.sleep(ctx, delay); serr != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUpstream, serr)
			break
		}
		delay *= 2
	}
	c.metrics.UpstreamRequest(route, "exhausted")
	return nil, fmt.Errorf("tmdb %s %s after %d attempts: %w", route, path, attempt, lastErr)
}

// do returns the body on 2xx. retry reports whether the failure is transient.
func (c *Client) do(ctx context.Context, u string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%w: %v", ErrUpstream, redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, false, ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, false, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, true, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
		default:
			return nil, false, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
		}
	}
	body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	return body, false, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

// redact strips the query string (it carries the api key) from url errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if i := strings.IndexByte(uerr.URL, '?'); i >= 0 {
			return &url.Error{Op: uerr.Op, URL: uerr.URL[:i], Err: uerr.Err}
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
