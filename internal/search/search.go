package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrPolicyRejected = errors.New("request denied by content policy")
	ErrNoResultsTable = errors.New("no results table on page")
	ErrInvalidToken   = errors.New("invalid continuation token")
	ErrNetwork        = errors.New("network error")
	ErrTimeout        = errors.New("request timed out")
	ErrUpstreamDecode = errors.New("cannot decode upstream payload")
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	ErrUnauthorized   = errors.New("invalid API key")
	ErrRateLimit      = errors.New("rate limit exceeded")
	ErrEmptyQuery     = errors.New("empty query")
	ErrQueryTooLong   = errors.New("query too long")
)

const MaxQueryLength = 1000

// Provider - общий контракт для бесплатного и платного поиска.
type Provider interface {
	Name() string
	InitialSearch(ctx context.Context, query string) (*Response, error)
	NextPage(ctx context.Context, token Token) (*Response, error)
}

type Record struct {
	Link          string `json:"link"`
	DisplayedLink string `json:"displayed_link"`
	Title         string `json:"title"`
	Snippet       string `json:"snippet,omitempty"`
}

type Response struct {
	Records      []Record
	Continuation Token
}

type Preference int

const (
	PreferFree Preference = iota
	PreferPremium
)

func (p Preference) String() string {
	if p == PreferPremium {
		return "premium"
	}
	return "free"
}

// ParsePreference follows the web form checkbox: any non-empty value means premium.
func ParsePreference(v string) Preference {
	if strings.TrimSpace(v) == "" {
		return PreferFree
	}
	return PreferPremium
}

// NormalizeQuery trims the query and enforces length limits.
func NormalizeQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", ErrEmptyQuery
	}
	if len(q) > MaxQueryLength {
		return "", ErrQueryTooLong
	}
	return q, nil
}

// WrapTransport classifies an http.Client error as ErrTimeout or ErrNetwork,
// keeping the original error in the chain.
func WrapTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
