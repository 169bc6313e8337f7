package venue

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// Coinbase implements Adapter against Coinbase's Advanced Trade (v3
// brokerage) public REST API. Grounded on the teacher's
// CoinbaseProvider (internal/provider/coinbase_provider.go): product_id
// dash convention and brokerage endpoint paths.
type Coinbase struct {
	g *guard
}

func NewCoinbase(cfg config.ProviderConfig) *Coinbase {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.coinbase.com"
	}
	return &Coinbase{g: newGuard("coinbase", base, cfg)}
}

func (c *Coinbase) Name() string              { return "coinbase" }
func (c *Coinbase) SupportsDerivatives() bool { return false }

func coinbaseProductID(symbol string) string {
	return symbolWithDash(symbol)
}

type coinbaseCandleResponse struct {
	Candles []struct {
		Start  string `json:"start"`
		Low    string `json:"low"`
		High   string `json:"high"`
		Open   string `json:"open"`
		Close  string `json:"close"`
		Volume string `json:"volume"`
	} `json:"candles"`
}

func (c *Coinbase) FetchCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]signal.Candle, error) {
	q := url.Values{
		"start":       {strconv.FormatInt(start.Unix(), 10)},
		"end":         {strconv.FormatInt(end.Unix(), 10)},
		"granularity": {coinbaseGranularity(interval)},
	}
	result, err := c.g.do(ctx, func() (any, error) {
		var resp coinbaseCandleResponse
		if err := doGet(ctx, c.g.client, c.g.baseURL+"/api/v3/brokerage/products/"+coinbaseProductID(symbol)+"/candles?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, &xerrors.VenueError{Venue: "coinbase", Kind: venueErrorKind(err), Err: err}
	}

	resp := result.(coinbaseCandleResponse)
	candles := make([]signal.Candle, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		startUnix, _ := strconv.ParseInt(row.Start, 10, 64)
		candles = append(candles, signal.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: time.Unix(startUnix, 0).UTC(),
			Open:     parseFloatSafe(row.Open),
			High:     parseFloatSafe(row.High),
			Low:      parseFloatSafe(row.Low),
			Close:    parseFloatSafe(row.Close),
			Volume:   parseFloatSafe(row.Volume),
			Source:   "coinbase",
		})
	}
	return candles, nil
}

func coinbaseGranularity(interval string) string {
	switch interval {
	case "1m":
		return "ONE_MINUTE"
	case "5m":
		return "FIVE_MINUTE"
	case "15m":
		return "FIFTEEN_MINUTE"
	case "1h":
		return "ONE_HOUR"
	case "4h":
		return "FOUR_HOUR"
	case "1d":
		return "ONE_DAY"
	default:
		return "ONE_HOUR"
	}
}

func (c *Coinbase) FetchOrderBookDepth(ctx context.Context, symbol string) (OrderBookDepth, error) {
	q := url.Values{"product_id": {coinbaseProductID(symbol)}, "limit": {"20"}}
	result, err := c.g.do(ctx, func() (any, error) {
		var resp struct {
			Pricebook struct {
				Bids []struct {
					Price string `json:"price"`
					Size  string `json:"size"`
				} `json:"bids"`
				Asks []struct {
					Price string `json:"price"`
					Size  string `json:"size"`
				} `json:"asks"`
			} `json:"pricebook"`
		}
		if err := doGet(ctx, c.g.client, c.g.baseURL+"/api/v3/brokerage/product_book?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return OrderBookDepth{}, &xerrors.VenueError{Venue: "coinbase", Kind: venueErrorKind(err), Err: err}
	}

	resp := result.(struct {
		Pricebook struct {
			Bids []struct {
				Price string `json:"price"`
				Size  string `json:"size"`
			} `json:"bids"`
			Asks []struct {
				Price string `json:"price"`
				Size  string `json:"size"`
			} `json:"asks"`
		} `json:"pricebook"`
	})

	depth := OrderBookDepth{Venue: "coinbase", Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, lvl := range resp.Pricebook.Bids {
		depth.Bids = append(depth.Bids, PriceLevel{Price: parseFloatSafe(lvl.Price), Size: parseFloatSafe(lvl.Size)})
	}
	for _, lvl := range resp.Pricebook.Asks {
		depth.Asks = append(depth.Asks, PriceLevel{Price: parseFloatSafe(lvl.Price), Size: parseFloatSafe(lvl.Size)})
	}
	if len(depth.Bids) > 0 {
		depth.BestBid, depth.BidSize = depth.Bids[0].Price, depth.Bids[0].Size
	}
	if len(depth.Asks) > 0 {
		depth.BestAsk, depth.AskSize = depth.Asks[0].Price, depth.Asks[0].Size
	}
	return depth, nil
}

// FetchFunding and FetchOpenInterest: Coinbase Advanced Trade is spot-only;
// perpetuals (Coinbase International) are a separate product outside
// this adapter's scope.
func (c *Coinbase) FetchFunding(ctx context.Context, symbol string) (FundingSnapshot, error) {
	return FundingSnapshot{}, nil
}

func (c *Coinbase) FetchOpenInterest(ctx context.Context, symbol string) (OpenInterestSnapshot, error) {
	return OpenInterestSnapshot{}, nil
}

func (c *Coinbase) FetchLiquidations(ctx context.Context, symbol string, since time.Time) ([]Liquidation, error) {
	return nil, nil
}

func parseFloatSafe(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
