package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"petrel/internal/logger"
	"petrel/internal/pkg/circuit"
	"petrel/internal/types"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/tidwall/gjson"
)

const (
	historyLimit = 500
	depthLevels  = 20
)

// BinanceConfig 行情源配置。
type BinanceConfig struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	MaxLeverage float64 // 交易所杠杆分层需要签名接口，这里由配置给出上限
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = 20
	}
	return c
}

// BinanceSource 基于 go-binance USDT-M 合约接口实现 Source。只读行情，
// 不涉及任何下单通道。
type BinanceSource struct {
	cfg     BinanceConfig
	client  *futures.Client
	breaker *circuit.CircuitBreaker

	rulesMu sync.Mutex
	rules   map[string]types.ContractRules
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	if url := strings.TrimSpace(final.RESTBaseURL); url != "" {
		client.BaseURL = url
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &BinanceSource{
		cfg:     final,
		client:  client,
		breaker: circuit.NewCircuitBreaker("binance-rest", 3, time.Minute),
		rules:   make(map[string]types.ContractRules),
	}
}

// Fetch 拉取一个完整快照。K 线任何一个周期失败都算失败（指标缺口会
// 污染整个周期）；盘口/资金费率失败只降级为显式缺失。
func (s *BinanceSource) Fetch(ctx context.Context, symbol string) (*Snapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("binance source: symbol is required")
	}
	now := time.Now().UTC()

	// REST 连续失败时熔断，跳过整个周期而不是带着残缺数据硬算
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("binance source: circuit open, skip fetch for %s", symbol)
	}

	frames := make(map[string]*Frame, 3)
	for _, interval := range []string{Interval1h, Interval15m, Interval5m} {
		candles, err := s.fetchCandles(ctx, symbol, interval)
		if err != nil {
			s.breaker.RecordFailure()
			return nil, fmt.Errorf("binance source: klines %s failed: %w", interval, err)
		}
		frames[interval] = NewFrame(DropUnclosed(candles, now))
	}
	s.breaker.RecordSuccess()

	snap := &Snapshot{
		Symbol:    symbol,
		Frames:    frames,
		FetchedAt: now,
	}

	if book, err := s.fetchBook(ctx, symbol); err != nil {
		logger.Warnf("binance source: order book unavailable for %s: %v", symbol, err)
	} else {
		snap.Book = book
		snap.MidPrice = book.MidPrice
	}

	if premium, err := s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx); err != nil {
		logger.Warnf("binance source: premium index unavailable for %s: %v", symbol, err)
	} else if len(premium) > 0 && premium[0] != nil {
		snap.MarkPrice = parseFloat(premium[0].MarkPrice)
		snap.FundingRate = parseFloat(premium[0].LastFundingRate)
	}

	if oi, err := s.client.NewGetOpenInterestService().Symbol(symbol).Do(ctx); err != nil {
		logger.Warnf("binance source: open interest unavailable for %s: %v", symbol, err)
	} else if oi != nil {
		snap.OpenInterest = parseFloat(oi.OpenInterest)
	}

	rules, err := s.contractRules(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("binance source: contract rules failed: %w", err)
	}
	snap.Rules = rules
	return snap, nil
}

func (s *BinanceSource) fetchCandles(ctx context.Context, symbol, interval string) ([]Candle, error) {
	kls, err := s.client.NewKlinesService().
		Symbol(symbol).Interval(interval).Limit(historyLimit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	return out, nil
}

func (s *BinanceSource) fetchBook(ctx context.Context, symbol string) (types.OrderBookInfo, error) {
	depth, err := s.client.NewDepthService().Symbol(symbol).Limit(depthLevels).Do(ctx)
	if err != nil {
		return types.OrderBookInfo{}, err
	}
	if depth == nil || len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return types.OrderBookInfo{}, fmt.Errorf("empty depth response")
	}
	bestBid := parseFloat(depth.Bids[0].Price)
	bestAsk := parseFloat(depth.Asks[0].Price)
	if bestBid <= 0 || bestAsk <= 0 {
		return types.OrderBookInfo{}, fmt.Errorf("invalid best bid/ask")
	}
	mid := (bestBid + bestAsk) / 2

	var bidValue, askValue float64
	for _, lvl := range depth.Bids {
		bidValue += parseFloat(lvl.Price) * parseFloat(lvl.Quantity)
	}
	for _, lvl := range depth.Asks {
		askValue += parseFloat(lvl.Price) * parseFloat(lvl.Quantity)
	}
	imbalance := 0.0
	if total := bidValue + askValue; total > 0 {
		imbalance = (bidValue - askValue) / total
	}
	return types.OrderBookInfo{
		Present:       true,
		BestBid:       bestBid,
		BestAsk:       bestAsk,
		MidPrice:      mid,
		SpreadBps:     (bestAsk - bestBid) / mid * 10_000,
		BidDepthValue: bidValue,
		AskDepthValue: askValue,
		Imbalance:     imbalance,
		Timestamp:     time.Now().UnixMilli(),
	}, nil
}

// contractRules 从 exchangeInfo 提取合约规则并缓存。filter 结构是松散的
// map 列表，字段名随交易所版本漂移，用 gjson 做容错提取。
func (s *BinanceSource) contractRules(ctx context.Context, symbol string) (types.ContractRules, error) {
	s.rulesMu.Lock()
	if cached, ok := s.rules[symbol]; ok {
		s.rulesMu.Unlock()
		return cached, nil
	}
	s.rulesMu.Unlock()

	info, err := s.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return types.ContractRules{}, err
	}
	for _, sym := range info.Symbols {
		if !strings.EqualFold(sym.Symbol, symbol) {
			continue
		}
		decimals := sym.QuantityPrecision
		if raw, err := json.Marshal(sym.Filters); err == nil {
			step := gjson.GetBytes(raw, `#(filterType=="LOT_SIZE").stepSize`)
			if !step.Exists() {
				step = gjson.GetBytes(raw, `#(filterType=="MARKET_LOT_SIZE").stepSize`)
			}
			if step.Exists() {
				if d, ok := stepSizeDecimals(step.String()); ok {
					decimals = d
				}
			}
		}
		rules := types.ContractRules{
			Symbol:       symbol,
			SizeDecimals: decimals,
			MaxLeverage:  s.cfg.MaxLeverage,
		}
		s.rulesMu.Lock()
		s.rules[symbol] = rules
		s.rulesMu.Unlock()
		return rules, nil
	}
	return types.ContractRules{}, fmt.Errorf("symbol %s not in exchange info", symbol)
}

// stepSizeDecimals "0.001" -> 3；"1" -> 0。
func stepSizeDecimals(step string) (int, bool) {
	v, err := strconv.ParseFloat(step, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	if idx := strings.IndexByte(step, '.'); idx >= 0 {
		frac := strings.TrimRight(step[idx+1:], "0")
		return len(frac), true
	}
	return 0, true
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
