package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// Kraken implements Adapter against Kraken's public REST API.
// Grounded on the teacher's KrakenProvider
// (internal/provider/kraken_provider.go): base URL, pair-name
// convention (no separator, e.g. "XBTUSD"), and OHLC endpoint.
type Kraken struct {
	g *guard
}

func NewKraken(cfg config.ProviderConfig) *Kraken {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.kraken.com/0/public"
	}
	return &Kraken{g: newGuard("kraken", base, cfg)}
}

func (k *Kraken) Name() string              { return "kraken" }
func (k *Kraken) SupportsDerivatives() bool { return false }

type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func krakenSymbol(symbol string) string {
	// BTCUSDT -> XBTUSDT; Kraken uses XBT for Bitcoin.
	if len(symbol) >= 3 && symbol[:3] == "BTC" {
		return "XBT" + symbol[3:]
	}
	return symbol
}

func (k *Kraken) FetchCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]signal.Candle, error) {
	minutes := intervalToMinutes(interval)
	q := url.Values{"pair": {krakenSymbol(symbol)}, "interval": {strconv.Itoa(minutes)}, "since": {strconv.FormatInt(start.Unix(), 10)}}

	result, err := k.g.do(ctx, func() (any, error) {
		var env krakenEnvelope
		if err := doGet(ctx, k.g.client, k.g.baseURL+"/OHLC?"+q.Encode(), &env); err != nil {
			return nil, err
		}
		if len(env.Error) > 0 {
			return nil, fmt.Errorf("kraken error: %v", env.Error)
		}
		var byPair map[string]json.RawMessage
		if err := json.Unmarshal(env.Result, &byPair); err != nil {
			return nil, err
		}
		for key, raw := range byPair {
			if key == "last" {
				continue
			}
			var rows [][]json.Number
			if err := json.Unmarshal(raw, &rows); err != nil {
				return nil, err
			}
			return rows, nil
		}
		return [][]json.Number{}, nil
	})
	if err != nil {
		return nil, &xerrors.VenueError{Venue: "kraken", Kind: venueErrorKind(err), Err: err}
	}

	rows := result.([][]json.Number)
	candles := make([]signal.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		ts, _ := row[0].Int64()
		open, _ := row[1].Float64()
		high, _ := row[2].Float64()
		low, _ := row[3].Float64()
		closeP, _ := row[4].Float64()
		volume, _ := row[6].Float64()
		candles = append(candles, signal.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: time.Unix(ts, 0).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   volume,
			Source:   "kraken",
		})
	}
	return candles, nil
}

func (k *Kraken) FetchOrderBookDepth(ctx context.Context, symbol string) (OrderBookDepth, error) {
	q := url.Values{"pair": {krakenSymbol(symbol)}, "count": {"20"}}
	result, err := k.g.do(ctx, func() (any, error) {
		var env krakenEnvelope
		if err := doGet(ctx, k.g.client, k.g.baseURL+"/Depth?"+q.Encode(), &env); err != nil {
			return nil, err
		}
		if len(env.Error) > 0 {
			return nil, fmt.Errorf("kraken error: %v", env.Error)
		}
		var byPair map[string]struct {
			Bids [][3]json.Number `json:"bids"`
			Asks [][3]json.Number `json:"asks"`
		}
		if err := json.Unmarshal(env.Result, &byPair); err != nil {
			return nil, err
		}
		for _, book := range byPair {
			return book, nil
		}
		return nil, fmt.Errorf("empty depth response")
	})
	if err != nil {
		return OrderBookDepth{}, &xerrors.VenueError{Venue: "kraken", Kind: venueErrorKind(err), Err: err}
	}

	book := result.(struct {
		Bids [][3]json.Number `json:"bids"`
		Asks [][3]json.Number `json:"asks"`
	})
	depth := OrderBookDepth{Venue: "kraken", Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, lvl := range book.Bids {
		price, _ := lvl[0].Float64()
		size, _ := lvl[1].Float64()
		depth.Bids = append(depth.Bids, PriceLevel{Price: price, Size: size})
	}
	for _, lvl := range book.Asks {
		price, _ := lvl[0].Float64()
		size, _ := lvl[1].Float64()
		depth.Asks = append(depth.Asks, PriceLevel{Price: price, Size: size})
	}
	if len(depth.Bids) > 0 {
		depth.BestBid, depth.BidSize = depth.Bids[0].Price, depth.Bids[0].Size
	}
	if len(depth.Asks) > 0 {
		depth.BestAsk, depth.AskSize = depth.Asks[0].Price, depth.Asks[0].Size
	}
	return depth, nil
}

// FetchFunding and FetchOpenInterest are not available on Kraken spot;
// Kraken's derivatives API is a separate product (futures.kraken.com)
// outside this adapter's scope, so both return a zero value and no
// error — ingestion treats this the same as a venue with no
// derivatives coverage for the symbol.
func (k *Kraken) FetchFunding(ctx context.Context, symbol string) (FundingSnapshot, error) {
	return FundingSnapshot{}, nil
}

func (k *Kraken) FetchOpenInterest(ctx context.Context, symbol string) (OpenInterestSnapshot, error) {
	return OpenInterestSnapshot{}, nil
}

func (k *Kraken) FetchLiquidations(ctx context.Context, symbol string, since time.Time) ([]Liquidation, error) {
	return nil, nil
}

func intervalToMinutes(interval string) int {
	switch interval {
	case "1m":
		return 1
	case "5m":
		return 5
	case "15m":
		return 15
	case "1h":
		return 60
	case "4h":
		return 240
	case "1d":
		return 1440
	default:
		return 60
	}
}
