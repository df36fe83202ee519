package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

var (
	// Metrics for market data requests
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketdata_fetch_total",
			Help: "Total number of market data fetches",
		},
		[]string{"endpoint", "outcome"},
	)

	fetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketdata_fetch_latency_seconds",
			Help:    "Market data fetch latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"endpoint"},
	)

	rateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketdata_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the request token bucket",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
		},
	)
)

// HTTPProvider fetches market data from a REST endpoint. Every request
// first acquires a token from a shared bucket so the configured
// per-minute budget holds across all workers.
type HTTPProvider struct {
	baseURL    string
	headers    map[string]string
	client     *http.Client
	limiter    *rate.Limiter
	resolution time.Duration
	lookback   int
	symbols    []string
}

// NewHTTPProvider creates a REST market data provider from config.
func NewHTTPProvider(cfg config.MarketDataConfig) (Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http provider requires a base URL")
	}
	interval := time.Minute / time.Duration(cfg.RateLimitPerMinute)
	return &HTTPProvider{
		baseURL: cfg.BaseURL,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:    rate.NewLimiter(rate.Every(interval), cfg.RateLimitBurst),
		resolution: cfg.ChartResolution,
		lookback:   cfg.LookbackBars,
		symbols:    cfg.Symbols,
	}, nil
}

// Name returns the provider type.
func (p *HTTPProvider) Name() string { return "http" }

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

type quoteDTO struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Sector      string  `json:"sector"`
	LastPrice   float64 `json:"last_price"`
	DailyVolume float64 `json:"daily_volume"`
	MarketCap   float64 `json:"market_cap"`
}

type candleDTO struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type levelDTO struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

type tradeDTO struct {
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Value     float64 `json:"value"`
	Side      string  `json:"side"`
	Timestamp int64   `json:"timestamp"`
}

type snapshotDTO struct {
	Quote   quoteDTO    `json:"quote"`
	Candles []candleDTO `json:"candles"`
	Book    struct {
		Bids []levelDTO `json:"bids"`
		Asks []levelDTO `json:"asks"`
	} `json:"orderbook"`
	Trades []tradeDTO `json:"trades"`
}

// FetchUniverse returns the market-watch list. Quotes that fail validation
// are dropped with a warning rather than failing the whole cycle.
func (p *HTTPProvider) FetchUniverse(ctx context.Context) ([]models.Quote, error) {
	var dtos []quoteDTO
	if err := p.get(ctx, "universe", "/marketwatch", nil, &dtos); err != nil {
		return nil, err
	}

	quotes := make([]models.Quote, 0, len(dtos))
	for _, dto := range dtos {
		q := models.Quote{
			Symbol:      dto.Symbol,
			Name:        dto.Name,
			Sector:      dto.Sector,
			LastPrice:   dto.LastPrice,
			DailyVolume: dto.DailyVolume,
			MarketCap:   dto.MarketCap,
		}
		if err := q.Validate(); err != nil {
			logger.Warn("Dropping invalid quote",
				logger.String("symbol", dto.Symbol),
				logger.ErrorField(err))
			continue
		}
		quotes = append(quotes, q)
	}

	if len(p.symbols) > 0 {
		quotes = filterSymbols(quotes, p.symbols)
	}
	return quotes, nil
}

// FetchSnapshot returns the full evaluation snapshot for one symbol.
func (p *HTTPProvider) FetchSnapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	if symbol == "" {
		return nil, models.ErrInvalidSymbol
	}

	query := url.Values{}
	query.Set("resolution", strconv.Itoa(int(p.resolution.Seconds())))
	query.Set("bars", strconv.Itoa(p.lookback))

	var dto snapshotDTO
	path := "/symbols/" + url.PathEscape(symbol) + "/snapshot"
	if err := p.get(ctx, "snapshot", path, query, &dto); err != nil {
		return nil, err
	}

	snapshot := &models.MarketSnapshot{
		Symbol:      dto.Quote.Symbol,
		Sector:      dto.Quote.Sector,
		LastPrice:   dto.Quote.LastPrice,
		DailyVolume: dto.Quote.DailyVolume,
		MarketCap:   dto.Quote.MarketCap,
		Candles:     make([]models.Candle, 0, len(dto.Candles)),
		Trades:      make([]models.Trade, 0, len(dto.Trades)),
		FetchedAt:   time.Now().UTC(),
	}
	if snapshot.Symbol == "" {
		snapshot.Symbol = symbol
	}

	for _, c := range dto.Candles {
		candle := models.Candle{
			Timestamp: time.Unix(c.Timestamp, 0).UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
		if err := candle.Validate(); err != nil {
			continue
		}
		snapshot.Candles = append(snapshot.Candles, candle)
	}
	sort.Slice(snapshot.Candles, func(i, j int) bool {
		return snapshot.Candles[i].Timestamp.Before(snapshot.Candles[j].Timestamp)
	})

	snapshot.Book.Bids = toLevels(dto.Book.Bids)
	snapshot.Book.Asks = toLevels(dto.Book.Asks)
	sort.Slice(snapshot.Book.Bids, func(i, j int) bool {
		return snapshot.Book.Bids[i].Price > snapshot.Book.Bids[j].Price
	})
	sort.Slice(snapshot.Book.Asks, func(i, j int) bool {
		return snapshot.Book.Asks[i].Price < snapshot.Book.Asks[j].Price
	})

	for _, t := range dto.Trades {
		snapshot.Trades = append(snapshot.Trades, models.Trade{
			Price:     t.Price,
			Volume:    t.Volume,
			Value:     t.Value,
			Side:      tradeSide(t.Side),
			Timestamp: time.Unix(t.Timestamp, 0).UTC(),
		})
	}
	sort.Slice(snapshot.Trades, func(i, j int) bool {
		return snapshot.Trades[i].Timestamp.Before(snapshot.Trades[j].Timestamp)
	})

	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: snapshot for %s: %v", models.ErrAPIRequest, symbol, err)
	}
	return snapshot, nil
}

// get performs one rate-limited GET and decodes the JSON response into v.
func (p *HTTPProvider) get(ctx context.Context, endpoint, path string, query url.Values, v interface{}) error {
	waitStart := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		fetchTotal.WithLabelValues(endpoint, "rate_limit").Inc()
		return classifyError(err)
	}
	rateLimitWait.Observe(time.Since(waitStart).Seconds())

	reqURL := p.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrAPIRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range p.headers {
		req.Header.Set(name, value)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	fetchLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		fetchTotal.WithLabelValues(endpoint, "error").Inc()
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fetchTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", models.ErrAPIRequest, path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		fetchTotal.WithLabelValues(endpoint, "decode_error").Inc()
		return fmt.Errorf("%w: decoding %s: %v", models.ErrAPIRequest, path, err)
	}

	fetchTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// classifyError maps transport failures onto the fetch error taxonomy:
// deadline and timeout failures are retryable-next-cycle timeouts, the
// rest are API errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrFetchTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrFetchTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrAPIRequest, err)
}

func toLevels(dtos []levelDTO) []models.DepthLevel {
	levels := make([]models.DepthLevel, 0, len(dtos))
	for _, l := range dtos {
		if l.Price <= 0 || l.Volume <= 0 {
			continue
		}
		levels = append(levels, models.DepthLevel{Price: l.Price, Volume: l.Volume})
	}
	return levels
}

func tradeSide(side string) models.TradeSide {
	switch side {
	case "buy", "BUY", "B":
		return models.TradeSideBuy
	case "sell", "SELL", "S":
		return models.TradeSideSell
	default:
		return models.TradeSideUnknown
	}
}

func filterSymbols(quotes []models.Quote, allowed []string) []models.Quote {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}
	filtered := quotes[:0]
	for _, q := range quotes {
		if _, ok := allowedSet[q.Symbol]; ok {
			filtered = append(filtered, q)
		}
	}
	return filtered
}
