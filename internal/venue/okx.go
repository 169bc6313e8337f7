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

// OKX implements Adapter against OKX's v5 public REST API. Grounded on
// the teacher's OKXProvider (internal/provider/okx_provider.go):
// instId convention ("BTC-USDT-SWAP"), envelope shape ({code,msg,data}).
type OKX struct {
	g *guard
}

func NewOKX(cfg config.ProviderConfig) *OKX {
	base := cfg.BaseURL
	if base == "" {
		base = "https://www.okx.com"
	}
	return &OKX{g: newGuard("okx", base, cfg)}
}

func (o *OKX) Name() string              { return "okx" }
func (o *OKX) SupportsDerivatives() bool { return true }

type okxEnvelope struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Data []json.RawMessage `json:"data"`
}

func okxInstID(symbol string) string {
	return symbolWithDash(symbol) + "-SWAP"
}

// symbolWithDash turns "BTCUSDT" into "BTC-USDT" assuming a 4-char
// quote currency; callers that need spot (no -SWAP suffix) use this
// directly.
func symbolWithDash(symbol string) string {
	if len(symbol) > 4 {
		return symbol[:len(symbol)-4] + "-" + symbol[len(symbol)-4:]
	}
	return symbol
}

func (o *OKX) fetch(ctx context.Context, path string, q url.Values) ([]json.RawMessage, error) {
	var env okxEnvelope
	if err := doGet(ctx, o.g.client, o.g.baseURL+path+"?"+q.Encode(), &env); err != nil {
		return nil, err
	}
	if env.Code != "0" {
		return nil, fmt.Errorf("okx error %s: %s", env.Code, env.Msg)
	}
	return env.Data, nil
}

func (o *OKX) FetchCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]signal.Candle, error) {
	q := url.Values{"instId": {okxInstID(symbol)}, "bar": {okxBar(interval)}, "limit": {"300"}}
	result, err := o.g.do(ctx, func() (any, error) {
		data, err := o.fetch(ctx, "/api/v5/market/candles", q)
		if err != nil {
			return nil, err
		}
		rows := make([][]json.Number, 0, len(data))
		for _, raw := range data {
			var row []json.Number
			if err := json.Unmarshal(raw, &row); err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
	if err != nil {
		return nil, &xerrors.VenueError{Venue: "okx", Kind: venueErrorKind(err), Err: err}
	}

	rows := result.([][]json.Number)
	candles := make([]signal.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		tsMs, _ := row[0].Int64()
		open, _ := row[1].Float64()
		high, _ := row[2].Float64()
		low, _ := row[3].Float64()
		closeP, _ := row[4].Float64()
		volume, _ := row[5].Float64()
		candles = append(candles, signal.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: time.UnixMilli(tsMs).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   volume,
			Source:   "okx",
		})
	}
	return candles, nil
}

func okxBar(interval string) string {
	switch interval {
	case "1m":
		return "1m"
	case "5m":
		return "5m"
	case "15m":
		return "15m"
	case "1h":
		return "1H"
	case "4h":
		return "4H"
	case "1d":
		return "1D"
	default:
		return "1H"
	}
}

func (o *OKX) FetchOrderBookDepth(ctx context.Context, symbol string) (OrderBookDepth, error) {
	q := url.Values{"instId": {okxInstID(symbol)}, "sz": {"20"}}
	result, err := o.g.do(ctx, func() (any, error) {
		data, err := o.fetch(ctx, "/api/v5/market/books", q)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("empty book response")
		}
		var book struct {
			Bids [][4]json.Number `json:"bids"`
			Asks [][4]json.Number `json:"asks"`
		}
		if err := json.Unmarshal(data[0], &book); err != nil {
			return nil, err
		}
		return book, nil
	})
	if err != nil {
		return OrderBookDepth{}, &xerrors.VenueError{Venue: "okx", Kind: venueErrorKind(err), Err: err}
	}

	book := result.(struct {
		Bids [][4]json.Number `json:"bids"`
		Asks [][4]json.Number `json:"asks"`
	})
	depth := OrderBookDepth{Venue: "okx", Symbol: symbol, Timestamp: time.Now().UTC()}
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

func (o *OKX) FetchFunding(ctx context.Context, symbol string) (FundingSnapshot, error) {
	q := url.Values{"instId": {okxInstID(symbol)}}
	result, err := o.g.do(ctx, func() (any, error) {
		data, err := o.fetch(ctx, "/api/v5/public/funding-rate", q)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("empty funding response")
		}
		var row struct {
			FundingRate string `json:"fundingRate"`
			NextFundingTime string `json:"nextFundingTime"`
		}
		if err := json.Unmarshal(data[0], &row); err != nil {
			return nil, err
		}
		return row, nil
	})
	if err != nil {
		return FundingSnapshot{}, &xerrors.VenueError{Venue: "okx", Kind: venueErrorKind(err), Err: err}
	}
	row := result.(struct {
		FundingRate     string `json:"fundingRate"`
		NextFundingTime string `json:"nextFundingTime"`
	})
	rate, _ := strconv.ParseFloat(row.FundingRate, 64)
	nextMs, _ := strconv.ParseInt(row.NextFundingTime, 10, 64)
	return FundingSnapshot{
		Venue:       "okx",
		Symbol:      symbol,
		Timestamp:   time.Now().UTC(),
		FundingRate: rate,
		NextFunding: time.UnixMilli(nextMs).UTC(),
	}, nil
}

func (o *OKX) FetchOpenInterest(ctx context.Context, symbol string) (OpenInterestSnapshot, error) {
	q := url.Values{"instId": {okxInstID(symbol)}}
	result, err := o.g.do(ctx, func() (any, error) {
		data, err := o.fetch(ctx, "/api/v5/public/open-interest", q)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("empty open interest response")
		}
		var row struct {
			Oi string `json:"oi"`
			Ts string `json:"ts"`
		}
		if err := json.Unmarshal(data[0], &row); err != nil {
			return nil, err
		}
		return row, nil
	})
	if err != nil {
		return OpenInterestSnapshot{}, &xerrors.VenueError{Venue: "okx", Kind: venueErrorKind(err), Err: err}
	}
	row := result.(struct {
		Oi string `json:"oi"`
		Ts string `json:"ts"`
	})
	oi, _ := strconv.ParseFloat(row.Oi, 64)
	tsMs, _ := strconv.ParseInt(row.Ts, 10, 64)
	return OpenInterestSnapshot{
		Venue:        "okx",
		Symbol:       symbol,
		Timestamp:    time.UnixMilli(tsMs).UTC(),
		OpenInterest: oi,
	}, nil
}

func (o *OKX) FetchLiquidations(ctx context.Context, symbol string, since time.Time) ([]Liquidation, error) {
	return nil, nil
}
