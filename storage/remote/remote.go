package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Response struct {
	Currency string               `json:"currency"`
	Balances []model.BalanceEntry `json:"balances"`
}

type client struct {
	baseURL     *url.URL      // Base URL for API requests
	httpClient  *http.Client  // HTTP client used to communicate with the ledger
	rateLimiter *rate.Limiter // Rate limiter for ledger api
}

// New creates a balance store backed by a remote ledger API.
// perSecond limits outgoing requests, values <= 0 default to 10.
func New(baseURL, apiKey string, perSecond int) (storage.BalanceStore, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse ledger url")
	}

	if perSecond <= 0 {
		perSecond = 10
	}

	c := &client{
		rateLimiter: rate.NewLimiter(rate.Every(time.Second/time.Duration(perSecond)), perSecond),
		httpClient: &http.Client{
			Transport: roundTripperFn(
				func(req *http.Request) (*http.Response, error) {
					req.Header.Set("X-Api-Key", apiKey)
					return http.DefaultTransport.RoundTrip(req)
				},
			),
		},
		baseURL: base,
	}

	return c, nil
}

func (c *client) Do(ctx context.Context, req *http.Request, v interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(storage.ErrUnavailable, err.Error())
	}

	log.Debug().Str("url", req.URL.String()).Msg("fetching balances from ledger")

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return errors.Wrap(storage.ErrUnavailable, err.Error())
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// unknown currency on the ledger side, nothing held
		return nil
	case resp.StatusCode >= http.StatusInternalServerError,
		resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(storage.ErrUnavailable, "ledger responded with code: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return errors.Errorf("unable to fetch balances due to code: %d", resp.StatusCode)
	}

	decErr := json.NewDecoder(resp.Body).Decode(v)
	if decErr == io.EOF {
		decErr = nil // ignore EOF errors caused by empty response body
	}

	return errors.Wrap(decErr, "decode ledger response")
}

// FetchBalances implements storage.BalanceStore.
// GET /balances/{currency}
func (c *client) FetchBalances(ctx context.Context, currencyID string) ([]model.BalanceEntry, error) {
	u := c.baseURL.JoinPath("balances", currencyID)

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	r := &Response{}

	if err := c.Do(ctx, req, r); err != nil {
		return nil, err
	}

	if r.Balances == nil {
		return []model.BalanceEntry{}, nil
	}

	return r.Balances, nil
}

type roundTripperFn func(*http.Request) (*http.Response, error)

func (fn roundTripperFn) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}
