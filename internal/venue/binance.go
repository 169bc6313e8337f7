package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantcandle/signalengine/internal/config"
	"github.com/quantcandle/signalengine/internal/signal"
	"github.com/quantcandle/signalengine/internal/xerrors"
)

// Binance implements Adapter against the Binance spot + USD-M futures
// REST API. Grounded on the teacher's BinanceProvider
// (internal/provider/binance_provider.go): symbol conversion, klines
// decoding shape, and guard-then-call structure kept, generalized to
// the narrower Adapter contract.
type Binance struct {
	g *guard
}

func NewBinance(cfg config.ProviderConfig) *Binance {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.binance.com"
	}
	return &Binance{g: newGuard("binance", base, cfg)}
}

func (b *Binance) Name() string               { return "binance" }
func (b *Binance) SupportsDerivatives() bool  { return true }

type binanceKline []json.Number

func (b *Binance) FetchCandles(ctx context.Context, symbol, interval string, start, end time.Time) ([]signal.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", "1000")

	result, err := b.g.do(ctx, func() (any, error) {
		var rows [][]json.Number
		if err := b.getJSON(ctx, "/api/v3/klines", q, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, &xerrors.VenueError{Venue: "binance", Kind: venueErrorKind(err), Err: err}
	}

	rows := result.([][]json.Number)
	candles := make([]signal.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		openTimeMs, _ := row[0].Int64()
		open, _ := row[1].Float64()
		high, _ := row[2].Float64()
		low, _ := row[3].Float64()
		closeP, _ := row[4].Float64()
		volume, _ := row[5].Float64()
		quoteVolume, _ := row[7].Float64()
		var tradeCount int64
		if len(row) > 8 {
			tradeCount, _ = row[8].Int64()
		}
		candles = append(candles, signal.Candle{
			Symbol:      symbol,
			Interval:    interval,
			OpenTime:    time.UnixMilli(openTimeMs).UTC(),
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closeP,
			Volume:      volume,
			QuoteVolume: quoteVolume,
			TradeCount:  tradeCount,
			Source:      "binance",
		})
	}
	return candles, nil
}

type binanceDepthResponse struct {
	Bids [][2]json.Number `json:"bids"`
	Asks [][2]json.Number `json:"asks"`
}

func (b *Binance) FetchOrderBookDepth(ctx context.Context, symbol string) (OrderBookDepth, error) {
	q := url.Values{"symbol": {symbol}, "limit": {"20"}}
	result, err := b.g.do(ctx, func() (any, error) {
		var resp binanceDepthResponse
		if err := b.getJSON(ctx, "/api/v3/depth", q, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return OrderBookDepth{}, &xerrors.VenueError{Venue: "binance", Kind: venueErrorKind(err), Err: err}
	}

	resp := result.(binanceDepthResponse)
	depth := OrderBookDepth{Venue: "binance", Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, lvl := range resp.Bids {
		price, _ := lvl[0].Float64()
		size, _ := lvl[1].Float64()
		depth.Bids = append(depth.Bids, PriceLevel{Price: price, Size: size})
	}
	for _, lvl := range resp.Asks {
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

type binanceFundingResponse []struct {
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
}

func (b *Binance) FetchFunding(ctx context.Context, symbol string) (FundingSnapshot, error) {
	q := url.Values{"symbol": {symbol}, "limit": {"1"}}
	result, err := b.g.do(ctx, func() (any, error) {
		var resp binanceFundingResponse
		if err := b.getFapiJSON(ctx, "/fapi/v1/fundingRate", q, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return FundingSnapshot{}, &xerrors.VenueError{Venue: "binance", Kind: venueErrorKind(err), Err: err}
	}
	resp := result.(binanceFundingResponse)
	if len(resp) == 0 {
		return FundingSnapshot{}, &xerrors.VenueError{Venue: "binance", Kind: xerrors.VenueParse, Err: fmt.Errorf("empty funding response")}
	}
	rate, _ := strconv.ParseFloat(resp[0].FundingRate, 64)
	return FundingSnapshot{
		Venue:       "binance",
		Symbol:      symbol,
		Timestamp:   time.UnixMilli(resp[0].FundingTime).UTC(),
		FundingRate: rate,
	}, nil
}

type binanceOpenInterestResponse struct {
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

func (b *Binance) FetchOpenInterest(ctx context.Context, symbol string) (OpenInterestSnapshot, error) {
	q := url.Values{"symbol": {symbol}}
	result, err := b.g.do(ctx, func() (any, error) {
		var resp binanceOpenInterestResponse
		if err := b.getFapiJSON(ctx, "/fapi/v1/openInterest", q, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return OpenInterestSnapshot{}, &xerrors.VenueError{Venue: "binance", Kind: venueErrorKind(err), Err: err}
	}
	resp := result.(binanceOpenInterestResponse)
	oi, _ := strconv.ParseFloat(resp.OpenInterest, 64)
	return OpenInterestSnapshot{
		Venue:        "binance",
		Symbol:       symbol,
		Timestamp:    time.UnixMilli(resp.Time).UTC(),
		OpenInterest: oi,
	}, nil
}

// FetchLiquidations is not exposed by Binance's REST API (only via the
// forceOrder websocket stream, out of scope for the polling adapter);
// it returns an empty slice rather than an error so ingestion does not
// treat a venue without liquidation coverage as failed.
func (b *Binance) FetchLiquidations(ctx context.Context, symbol string, since time.Time) ([]Liquidation, error) {
	return nil, nil
}

func (b *Binance) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	return doGet(ctx, b.g.client, b.g.baseURL+path+"?"+q.Encode(), out)
}

func (b *Binance) getFapiJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	return doGet(ctx, b.g.client, "https://fapi.binance.com"+path+"?"+q.Encode(), out)
}

func doGet(ctx context.Context, client *http.Client, fullURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func venueErrorKind(err error) xerrors.VenueErrorKind {
	if err == context.DeadlineExceeded || err == context.Canceled {
		return xerrors.VenueNet
	}
	return xerrors.VenueNet
}
