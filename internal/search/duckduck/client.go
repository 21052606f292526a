package duckduck

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/kitbuilder587/boing-search/internal/metrics"
	"github.com/kitbuilder587/boing-search/internal/ratelimit"
	"github.com/kitbuilder587/boing-search/internal/rotation"
	"github.com/kitbuilder587/boing-search/internal/search"
)

const (
	Name = "duckduck"

	DefaultBaseURL = "http://lite.duckduckgo.com/lite/"
	DefaultNextURL = "https://lite.duckduckgo.com/lite/"
	DefaultRegion  = "wt-wt"
	maxRedirects   = 30
)

// DefaultUserAgent is used when no pool is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"

var ErrTooManyRedirects = errors.New("stopped after 30 redirects")

type Config struct {
	BaseURL string
	NextURL string
	Region  string
	Timeout time.Duration
}

// Deps - зависимости скрейпера. Gate и Proxies общие на процесс.
type Deps struct {
	Gate       *ratelimit.Gate
	Proxies    *rotation.Rotator[*url.URL]
	UserAgents *rotation.Rotator[string]
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type Client struct {
	cfg     Config
	gate    *ratelimit.Gate
	proxies *rotation.Rotator[*url.URL]
	agents  *rotation.Rotator[string]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, deps Deps) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.NextURL == "" {
		cfg.NextURL = DefaultNextURL
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if deps.Gate == nil {
		deps.Gate = ratelimit.NewGate(0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Client{
		cfg:     cfg,
		gate:    deps.Gate,
		proxies: deps.Proxies,
		agents:  deps.UserAgents,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) InitialSearch(ctx context.Context, query string) (*search.Response, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("kl", c.cfg.Region)
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(ctx, req)
}

// NextPage posts the hidden fields of the previous page's "Next" form.
func (c *Client) NextPage(ctx context.Context, token search.Token) (*search.Response, error) {
	if token.IsEmpty() {
		return nil, fmt.Errorf("%w: empty token", search.ErrInvalidToken)
	}
	if q, ok := token.Get("q"); !ok || strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: missing q", search.ErrInvalidToken)
	}

	body := token.Values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.NextURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*search.Response, error) {
	proxy, err := c.proxies.Next()
	if err != nil {
		return nil, fmt.Errorf("select proxy: %w", err)
	}

	waitStart := time.Now()
	if _, err := c.gate.Wait(ctx); err != nil {
		return nil, search.WrapTransport(err)
	}
	if c.metrics != nil {
		c.metrics.RecordGateWait(time.Since(waitStart))
		c.metrics.RecordProxyUse(rotation.Redact(proxy))
	}

	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Close = true

	c.logger.Debug("scrape request",
		zap.String("method", req.Method),
		zap.String("proxy", rotation.Redact(proxy)),
	)

	resp, err := c.httpClient(proxy).Do(req)
	if err != nil {
		return nil, search.WrapTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: status %d", search.ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrUpstreamDecode, err)
	}

	page, err := ParsePage(body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, search.WrapTransport(ctx.Err())
		}
		return nil, err
	}

	if page.LayoutDrift {
		c.logger.Warn("results table row count is not a multiple of 4, layout may have changed")
		if c.metrics != nil {
			c.metrics.RecordLayoutDrift()
		}
	}
	for _, chunkErr := range page.ChunkErrors {
		c.logger.Warn("skipping malformed result", zap.Error(chunkErr))
	}
	if c.metrics != nil && len(page.ChunkErrors) > 0 {
		c.metrics.RecordSkippedChunks(len(page.ChunkErrors))
	}

	return page.Response, nil
}

// httpClient builds a fresh client per request: no cookie jar, HTTP/1.1 only.
func (c *Client) httpClient(proxy *url.URL) *http.Client {
	transport := &http.Transport{
		Proxy:             http.ProxyURL(proxy),
		ForceAttemptHTTP2: false,
		TLSNextProto:      map[string]func(string, *tls.Conn) http.RoundTripper{},
		DisableKeepAlives: true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   c.cfg.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

func (c *Client) userAgent() string {
	if ua, err := c.agents.Next(); err == nil && ua != "" {
		return ua
	}
	return DefaultUserAgent
}
