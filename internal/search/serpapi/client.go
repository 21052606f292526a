package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/cache/memory"
	"github.com/kitbuilder587/boing-search/internal/metrics"
	"github.com/kitbuilder587/boing-search/internal/search"
)

const (
	Name = "serpapi"

	DefaultBaseURL = "https://serpapi.com"
	pageSize       = 10
)

// noResultsMessage is returned in the error field for a valid query with an
// empty result set.
const noResultsMessage = "hasn't returned any results"

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// AccountTTL - сколько держать в кеше остаток квоты.
	AccountTTL time.Duration
}

type Client struct {
	apiKey     string
	baseURL    string
	accountTTL time.Duration
	client     *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
	account    *memory.Cache[Account]
}

func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AccountTTL == 0 {
		cfg.AccountTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountTTL: cfg.AccountTTL,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		metrics:    m,
		account:    memory.New[Account](),
	}
}

// Close stops the account cache janitor.
func (c *Client) Close() {
	c.account.Stop()
}

type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
	Error          string          `json:"error"`
}

type organicResult struct {
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Link          string `json:"link"`
	DisplayedLink string `json:"displayed_link"`
	Snippet       string `json:"snippet"`
}

func (c *Client) Name() string {
	return Name
}

func (c *Client) InitialSearch(ctx context.Context, query string) (*search.Response, error) {
	records, err := c.serp(ctx, query, 0)
	if err != nil {
		return nil, err
	}
	return &search.Response{Records: records, Continuation: pageToken(query, pageSize)}, nil
}

// NextPage expects a token produced by this client: q and a numeric offset.
func (c *Client) NextPage(ctx context.Context, token search.Token) (*search.Response, error) {
	query, ok := token.Get("q")
	if !ok || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: missing q", search.ErrInvalidToken)
	}
	rawOffset, ok := token.Get("offset")
	if !ok {
		return nil, fmt.Errorf("%w: missing offset", search.ErrInvalidToken)
	}
	offset, err := strconv.Atoi(rawOffset)
	if err != nil || offset < 0 {
		return nil, fmt.Errorf("%w: bad offset %q", search.ErrInvalidToken, rawOffset)
	}

	records, err := c.serp(ctx, query, offset)
	if err != nil {
		return nil, err
	}
	return &search.Response{Records: records, Continuation: pageToken(query, offset+pageSize)}, nil
}

func pageToken(query string, offset int) search.Token {
	return search.NewToken().
		With("q", query).
		With("offset", strconv.Itoa(offset)).
		With(search.PremiumMarker, "checked")
}

func (c *Client) serp(ctx context.Context, query string, offset int) ([]search.Record, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(pageSize))
	if offset > 0 {
		params.Set("start", strconv.Itoa(offset))
	}

	var resp searchResponse
	if err := c.getJSON(ctx, "/search.json", params, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		if strings.Contains(resp.Error, noResultsMessage) {
			return []search.Record{}, nil
		}
		return nil, fmt.Errorf("%w: %s", search.ErrUpstreamStatus, resp.Error)
	}

	c.logger.Debug("serpapi results",
		zap.String("query", query),
		zap.Int("offset", offset),
		zap.Int("count", len(resp.OrganicResults)),
	)

	records := make([]search.Record, len(resp.OrganicResults))
	for i, r := range resp.OrganicResults {
		records[i] = search.Record{
			Link:          r.Link,
			DisplayedLink: r.DisplayedLink,
			Title:         r.Title,
			Snippet:       r.Snippet,
		}
	}
	return records, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return search.WrapTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return search.WrapTransport(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return search.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return search.ErrRateLimit
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// serpapi отдает текст ошибки в json даже на 4xx
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			if strings.Contains(e.Error, noResultsMessage) {
				return json.Unmarshal(body, out)
			}
			return fmt.Errorf("%w: status %d: %s", search.ErrUpstreamStatus, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("%w: status %d", search.ErrUpstreamStatus, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", search.ErrUpstreamDecode, err)
	}
	return nil
}
