package repository

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"FinSynth/internal/domain/models"
	xhttp "FinSynth/pkg/http"
)

// publishSkew is how far after ts a Hermes update may be published and
// still count as the price at ts.
const publishSkew = 2 * time.Second

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int    `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesUpdate struct {
	Parsed []struct {
		ID    string      `json:"id"`
		Price hermesPrice `json:"price"`
	} `json:"parsed"`
}

// HTTPOracle queries the Pyth Hermes historical price endpoint.
type HTTPOracle struct {
	client       *xhttp.Client
	baseURL      string
	feeds        map[string]string
	maxStaleness time.Duration
	now          func() time.Time
}

// NewHTTPOracle builds an oracle over Hermes. feeds maps asset to Pyth feed id.
func NewHTTPOracle(client *xhttp.Client, baseURL string, feeds map[string]string, maxStaleness time.Duration) *HTTPOracle {
	return &HTTPOracle{
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		feeds:        feeds,
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// PriceAt returns the Hermes update published at ts. A ts that is not yet in
// the past resolves to the latest update, which must be no older than
// maxStaleness.
func (o *HTTPOracle) PriceAt(ctx context.Context, asset string, ts time.Time) (float64, error) {
	feed, ok := o.feeds[asset]
	if !ok || feed == "" {
		return 0, fmt.Errorf("%w: no price feed for %s", models.ErrDataUnavailable, asset)
	}

	now := o.now()
	path := strconv.FormatInt(ts.Unix(), 10)
	if !ts.Before(now) {
		path, ts = "latest", now
	}

	var upd hermesUpdate
	err := o.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    o.baseURL + "/v2/updates/price/" + path,
		QueryParams: map[string][]string{
			"ids[]":  {feed},
			"parsed": {"true"},
		},
	}, &upd)
	if err != nil {
		return 0, fmt.Errorf("%w: hermes %s: %w", models.ErrDataUnavailable, asset, err)
	}
	if len(upd.Parsed) == 0 {
		return 0, fmt.Errorf("%w: hermes %s: empty update", models.ErrDataUnavailable, asset)
	}

	p := upd.Parsed[0].Price
	published := time.Unix(p.PublishTime, 0)
	if published.After(ts.Add(publishSkew)) || published.Before(ts.Add(-o.maxStaleness)) {
		return 0, fmt.Errorf("%w: hermes %s published at %d for %d", models.ErrDataUnavailable, asset, p.PublishTime, ts.Unix())
	}

	price, err := decodeHermesPrice(p)
	if err != nil {
		return 0, fmt.Errorf("%w: hermes %s: %w", models.ErrDataUnavailable, asset, err)
	}
	return price, nil
}

// decodeHermesPrice applies the fixed-point exponent: price * 10^expo.
func decodeHermesPrice(p hermesPrice) (float64, error) {
	mantissa, err := strconv.ParseInt(p.Price, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", p.Price, err)
	}
	return float64(mantissa) * math.Pow10(p.Expo), nil
}
