package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/metrics"
	"github.com/kitbuilder587/boing-search/internal/search"
)

// Policy decides whether a query may be sent upstream.
type Policy interface {
	Check(query string) error
}

type Deps struct {
	Free    search.Provider
	Premium search.Provider
	Policy  Policy
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Engine выбирает провайдера по предпочтению пользователя и один раз
// откатывается на второй при ошибке первого.
type Engine struct {
	free    search.Provider
	premium search.Provider
	policy  Policy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{
		free:    deps.Free,
		premium: deps.Premium,
		policy:  deps.Policy,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
}

func (e *Engine) FirstSearch(ctx context.Context, query string, pref search.Preference) (*search.Response, error) {
	query, err := search.NormalizeQuery(query)
	if err != nil {
		return nil, err
	}

	if e.policy != nil {
		if err := e.policy.Check(query); err != nil {
			e.logger.Info("query rejected by policy", zap.Error(err))
			if e.metrics != nil {
				e.metrics.RecordPolicyRejection()
			}
			return nil, err
		}
	}

	primary, secondary := e.free, e.premium
	if pref == search.PreferPremium {
		primary, secondary = e.premium, e.free
	}

	resp, err := e.call(primary, "initial", func(p search.Provider) (*search.Response, error) {
		return p.InitialSearch(ctx, query)
	})
	if err == nil {
		return resp, nil
	}

	// клиент ушел, фолбэк не нужен
	if ctx.Err() != nil {
		return nil, err
	}

	e.logger.Warn("primary provider failed, falling back",
		zap.String("primary", primary.Name()),
		zap.String("secondary", secondary.Name()),
		zap.String("preference", pref.String()),
		zap.Error(err),
	)
	if e.metrics != nil {
		e.metrics.RecordFallback(primary.Name(), secondary.Name())
	}

	resp, fallbackErr := e.call(secondary, "initial", func(p search.Provider) (*search.Response, error) {
		return p.InitialSearch(ctx, query)
	})
	if fallbackErr != nil {
		return nil, fmt.Errorf("%s: %w", secondary.Name(), fallbackErr)
	}
	return resp, nil
}

// NextPage routes the token back to the provider that issued it. There is no
// fallback: a token from one provider means nothing to the other.
func (e *Engine) NextPage(ctx context.Context, token search.Token) (*search.Response, error) {
	if token.IsEmpty() {
		return nil, fmt.Errorf("%w: empty token", search.ErrInvalidToken)
	}

	provider := e.free
	if token.IsPremium() {
		provider = e.premium
	}

	return e.call(provider, "next", func(p search.Provider) (*search.Response, error) {
		return p.NextPage(ctx, token)
	})
}

func (e *Engine) call(p search.Provider, op string, fn func(search.Provider) (*search.Response, error)) (*search.Response, error) {
	start := time.Now()
	resp, err := fn(p)

	if e.metrics != nil {
		e.metrics.RecordProviderRequest(p.Name(), op, statusLabel(err), time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug("provider responded",
		zap.String("provider", p.Name()),
		zap.String("op", op),
		zap.Int("records", len(resp.Records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, search.ErrTimeout):
		return "timeout"
	case errors.Is(err, search.ErrNoResultsTable):
		return "no_table"
	case errors.Is(err, search.ErrInvalidToken):
		return "invalid_token"
	default:
		return "error"
	}
}
