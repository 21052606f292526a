package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kitbuilder587/boing-search/internal/search"
)

// Client - тестовый провайдер, считает вызовы и отдает заранее заданные ответы.
type Client struct {
	ProviderName string
	Records      []search.Record
	Continuation search.Token
	NextRecords  []search.Record
	Error        error
	NextError    error
	Delay        time.Duration

	CallCount     int
	NextCallCount int
	LastQuery     string
	LastToken     search.Token
	AllQueries    []string

	mu sync.Mutex
}

func New(name string) *Client {
	return &Client{ProviderName: name}
}

func (c *Client) WithRecords(records []search.Record) *Client {
	c.Records = records
	return c
}

func (c *Client) WithContinuation(token search.Token) *Client {
	c.Continuation = token
	return c
}

func (c *Client) WithNextRecords(records []search.Record) *Client {
	c.NextRecords = records
	return c
}

func (c *Client) WithError(err error) *Client {
	c.Error = err
	return c
}

func (c *Client) WithNextError(err error) *Client {
	c.NextError = err
	return c
}

func (c *Client) WithDelay(delay time.Duration) *Client {
	c.Delay = delay
	return c
}

func (c *Client) Name() string {
	return c.ProviderName
}

func (c *Client) InitialSearch(ctx context.Context, query string) (*search.Response, error) {
	c.mu.Lock()
	c.CallCount++
	c.LastQuery = query
	c.AllQueries = append(c.AllQueries, query)
	delay, err := c.Delay, c.Error
	resp := &search.Response{Records: c.Records, Continuation: c.Continuation}
	c.mu.Unlock()

	if err := c.sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) NextPage(ctx context.Context, token search.Token) (*search.Response, error) {
	c.mu.Lock()
	c.NextCallCount++
	c.LastToken = token
	delay, err := c.Delay, c.NextError
	resp := &search.Response{Records: c.NextRecords, Continuation: c.Continuation}
	c.mu.Unlock()

	if err := c.sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Calls() (initial, next int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCount, c.NextCallCount
}

func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCount = 0
	c.NextCallCount = 0
	c.LastQuery = ""
	c.LastToken = search.Token{}
	c.AllQueries = nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
