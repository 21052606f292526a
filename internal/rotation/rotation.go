package rotation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

var (
	ErrEmptyPool    = errors.New("rotation pool is empty")
	ErrInvalidProxy = errors.New("invalid proxy address")
)

// Direct in a proxy list means "connect without a proxy" for that slot.
const Direct = "direct"

// Rotator hands out pool items in strict round robin. Safe for concurrent use;
// two callers may get the same item, but the counter never loses an update.
type Rotator[T any] struct {
	items   []T
	counter atomic.Uint64
}

func New[T any](items []T) *Rotator[T] {
	cp := make([]T, len(items))
	copy(cp, items)
	return &Rotator[T]{items: cp}
}

func (r *Rotator[T]) Next() (T, error) {
	var zero T
	if r == nil || len(r.items) == 0 {
		return zero, ErrEmptyPool
	}
	n := r.counter.Add(1) - 1
	return r.items[n%uint64(len(r.items))], nil
}

func (r *Rotator[T]) Len() int {
	if r == nil {
		return 0
	}
	return len(r.items)
}

// ParseProxies validates proxy URIs. Supported schemes are those net/http
// understands: http, https, socks5, socks5h. "direct" yields a nil entry.
func ParseProxies(raw []string) ([]*url.URL, error) {
	out := make([]*url.URL, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.EqualFold(p, Direct) {
			out = append(out, nil)
			continue
		}
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidProxy, p, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("%w %q: unsupported scheme", ErrInvalidProxy, p)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("%w %q: missing host", ErrInvalidProxy, p)
		}
		out = append(out, u)
	}
	return out, nil
}

// Redact hides proxy credentials for logging.
func Redact(u *url.URL) string {
	if u == nil {
		return Direct
	}
	return u.Redacted()
}
