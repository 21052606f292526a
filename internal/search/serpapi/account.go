package serpapi

import (
	"context"
	"fmt"
	"net/url"
)

const accountCacheKey = "account"

type Account struct {
	PlanName          string `json:"plan_name"`
	SearchesPerMonth  int    `json:"searches_per_month"`
	ThisMonthUsage    int    `json:"this_month_usage"`
	TotalSearchesLeft int    `json:"total_searches_left"`
}

// Account fetches the account state without caching.
func (c *Client) Account(ctx context.Context) (Account, error) {
	var acc Account
	if err := c.getJSON(ctx, "/account.json", url.Values{}, &acc); err != nil {
		return Account{}, fmt.Errorf("fetch account: %w", err)
	}
	return acc, nil
}

// SearchesLeft returns the remaining premium quota, cached for AccountTTL.
func (c *Client) SearchesLeft(ctx context.Context) (int, error) {
	acc, hit, err := c.account.GetOrLoad(accountCacheKey, c.accountTTL, func() (Account, error) {
		return c.Account(ctx)
	})
	if c.metrics != nil {
		if hit {
			c.metrics.RecordCacheHit()
		} else {
			c.metrics.RecordCacheMiss()
		}
	}
	if err != nil {
		return 0, err
	}
	return acc.TotalSearchesLeft, nil
}
