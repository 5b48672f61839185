package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/marketgate"
	"github.com/wonny/canslim/internal/metrics"
	"github.com/wonny/canslim/internal/ratings"
	"github.com/wonny/canslim/internal/scoring"
	"github.com/wonny/canslim/internal/strategyconfig"
	"github.com/wonny/canslim/pkg/logger"
)

// Dataset is everything one simulation reads, loaded before the first day.
// Series are ascending by date.
type Dataset struct {
	Bars      map[string][]contracts.Bar
	Earnings  map[string][]contracts.EarningsRecord
	Ownership map[string][]contracts.OwnershipRecord
	Meta      map[string]contracts.SymbolMeta
	Benchmark []contracts.Bar
}

// Params are the resolved simulation parameters
type Params struct {
	contracts.BacktestConfig
	FixedProfitTarget float64 // percent, 15
	MaxHoldingDays    int     // calendar days, 30
}

// position is one open trade plus its latest mark
type position struct {
	trade contracts.Trade
	mark  float64
}

// Simulator replays trading days in order. It holds no shared state, so
// independent simulations may run concurrently.
// ⭐ SSOT: 백테스트 일별 시뮬레이션은 여기서만
type Simulator struct {
	params  Params
	data    Dataset
	engine  *scoring.Engine
	gateCfg strategyconfig.MarketGate
	logger  *logger.Logger

	cash   float64
	open   []*position
	closed []contracts.Trade
	curve  []contracts.EquityPoint
	days   int

	gateFailOpen int
}

// Result is the raw outcome of a simulation before statistics
type Result struct {
	Trades      []contracts.Trade
	EquityCurve []contracts.EquityPoint
	FinalEquity float64
	TradingDays int

	// GateFailOpenDays counts gated days the benchmark was too short to judge
	GateFailOpenDays int
}

// NewSimulator creates a simulator starting with params.InitialCapital in cash
func NewSimulator(cfg *strategyconfig.Config, params Params, data Dataset, log *logger.Logger) *Simulator {
	gateCfg := cfg.MarketGate
	gateCfg.Enabled = params.UseMarketGate

	return &Simulator{
		params:  params,
		data:    data,
		engine:  scoring.NewEngine(cfg),
		gateCfg: gateCfg,
		logger:  log,
		cash:    params.InitialCapital,
	}
}

// Run walks every weekday in [from, to] and force-closes what is still open
// on the last one
func (s *Simulator) Run(from, to time.Time) Result {
	var last time.Time
	for d := contracts.Day(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		if !isTradingDay(d) {
			continue
		}
		s.step(d)
		last = d
	}

	if !last.IsZero() {
		s.closeAll(last, contracts.ExitEndOfRange)
		if n := len(s.curve); n > 0 {
			s.curve[n-1] = s.point(last)
		}
	}

	return Result{
		Trades:      s.closed,
		EquityCurve: s.curve,
		FinalEquity: s.equity(),
		TradingDays: s.days,

		GateFailOpenDays: s.gateFailOpen,
	}
}

// step processes one trading day: gate, exits, entries, then the curve point
func (s *Simulator) step(d time.Time) {
	s.days++
	s.markToMarket(d)

	if s.gateCfg.Enabled {
		dec := marketgate.Decide(s.gateCfg, contracts.BarsThrough(s.data.Benchmark, d), d)
		if dec.Reason == marketgate.ReasonInsufficientData {
			s.gateFailOpen++
		}
		if !dec.Open {
			if len(s.open) > 0 {
				s.logger.WithFields(map[string]interface{}{
					"date":      d.Format(time.DateOnly),
					"positions": len(s.open),
				}).Debug("Market down, closing all positions")
			}
			s.closeAll(d, contracts.ExitMarketDown)
			s.curve = append(s.curve, s.point(d))
			return
		}
	}

	s.processExits(d)
	if len(s.open) < s.params.MaxPositions {
		s.processEntries(d)
	}
	s.curve = append(s.curve, s.point(d))
}

// markToMarket moves each open position's mark to the last close on or before d
func (s *Simulator) markToMarket(d time.Time) {
	for _, p := range s.open {
		if bar, ok := lastBar(s.data.Bars[p.trade.Symbol], d); ok {
			p.mark = bar.Close
		}
	}
}

func (s *Simulator) processExits(d time.Time) {
	kept := s.open[:0]
	for _, p := range s.open {
		ret := p.mark/p.trade.EntryPrice - 1
		reason := exitReason(s.params, ret, holdingDays(p.trade.EntryDate, d))
		if reason == "" {
			kept = append(kept, p)
			continue
		}
		s.close(p, d, reason)
	}
	s.open = kept
}

// exitReason applies the exit checks in order: stop loss, fixed profit
// target, configured profit target, time limit. Empty means hold.
func exitReason(p Params, ret float64, held int) string {
	if ret <= -p.StopLossPercent/100 {
		return contracts.ExitStopLoss
	}

	custom := p.ProfitTargetPercent
	fixedActive := p.ProfitTargetMode != contracts.ProfitTargetOverride || custom <= 0
	if fixedActive && p.FixedProfitTarget > 0 && ret >= p.FixedProfitTarget/100 {
		return contracts.ExitProfitTarget
	}
	if custom > 0 && ret >= custom/100 {
		return contracts.ExitProfitTargetCustom
	}

	if held > p.MaxHoldingDays {
		return contracts.ExitTimeLimit
	}
	return ""
}

// candidate is a symbol that cleared every entry filter on a day
type candidate struct {
	symbol string
	price  float64
	score  float64
}

// processEntries scores every symbol with data through d and opens the best
// candidates into the free slots
func (s *Simulator) processEntries(d time.Time) {
	held := make(map[string]bool, len(s.open))
	for _, p := range s.open {
		held[p.trade.Symbol] = true
	}

	bars := make(map[string][]contracts.Bar, len(s.data.Bars))
	peers := make(map[string][]contracts.EarningsRecord, len(s.data.Earnings))
	for sym, series := range s.data.Bars {
		// the benchmark is never a candidate or an RS peer
		if sym == s.gateCfg.Ticker {
			continue
		}
		bars[sym] = contracts.BarsThrough(series, d)
	}
	for sym, records := range s.data.Earnings {
		if through := contracts.EarningsThrough(records, d); len(through) > 0 {
			peers[sym] = through
		}
	}

	sample := metrics.SampleFromBars(bars)
	industryRanks := ratings.IndustryRanks(sample.Returns(), s.data.Meta)
	benchmark := ratings.NewFundamentalsBenchmark(peers)

	var candidates []candidate
	for sym, series := range bars {
		if held[sym] || len(series) == 0 || !series[len(series)-1].Date.Equal(d) {
			continue
		}

		in := metrics.Input{
			Symbol:    sym,
			Bars:      series,
			Earnings:  peers[sym],
			Ownership: contracts.OwnershipThrough(s.data.Ownership[sym], d),
		}
		fs := metrics.Compute(in, sample)
		aux := ratings.Calculate(ratings.Input{
			Symbol:       sym,
			Bars:         series,
			Earnings:     in.Earnings,
			Peers:        benchmark,
			IndustryRank: ratings.IndustryRankFor(sym, s.data.Meta, industryRanks),
		}, sample)
		res := s.engine.Score(sym, fs, aux, d)

		if res.Score < s.params.ScoreCutoff || !s.engine.PassesLiquidity(fs) || !metrics.Breakout(series) {
			continue
		}
		candidates = append(candidates, candidate{symbol: sym, price: fs.LastClose, score: res.Score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].symbol < candidates[j].symbol
	})

	for _, c := range candidates {
		if len(s.open) >= s.params.MaxPositions {
			break
		}
		shares := positionSize(s.cash, s.params.RiskPercent, s.params.StopLossPercent, c.price)
		cost := float64(shares) * c.price
		if shares <= 0 || cost > s.cash {
			continue
		}

		s.cash -= cost
		s.open = append(s.open, &position{
			trade: contracts.Trade{
				Symbol:     c.symbol,
				EntryDate:  d,
				EntryPrice: c.price,
				Shares:     shares,
				EntryScore: c.score,
			},
			mark: c.price,
		})
	}
}

// positionSize is floor((cash × risk%) / stop% / price)
func positionSize(cash, riskPercent, stopPercent, price float64) int64 {
	if price <= 0 || stopPercent <= 0 {
		return 0
	}
	risk := cash * riskPercent / 100
	return int64(math.Floor(risk / (stopPercent / 100) / price))
}

func (s *Simulator) closeAll(d time.Time, reason string) {
	for _, p := range s.open {
		s.close(p, d, reason)
	}
	s.open = s.open[:0]
}

// close realises a position at its current mark
func (s *Simulator) close(p *position, d time.Time, reason string) {
	t := p.trade
	exit := d
	t.ExitDate = &exit
	t.ExitPrice = p.mark
	t.ExitReason = reason
	t.ReturnPct = p.mark/t.EntryPrice - 1
	t.PnL = (p.mark - t.EntryPrice) * float64(t.Shares)
	t.HoldingDays = holdingDays(t.EntryDate, d)

	s.cash += p.mark * float64(t.Shares)
	s.closed = append(s.closed, t)
}

func (s *Simulator) equity() float64 {
	eq := s.cash
	for _, p := range s.open {
		eq += p.mark * float64(p.trade.Shares)
	}
	return eq
}

func (s *Simulator) point(d time.Time) contracts.EquityPoint {
	return contracts.EquityPoint{
		Date:          d,
		Equity:        s.equity(),
		Cash:          s.cash,
		OpenPositions: len(s.open),
	}
}

// === helpers ===

func isTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func holdingDays(entry, d time.Time) int {
	return int(d.Sub(entry).Hours() / 24)
}

// lastBar returns the latest bar on or before d
func lastBar(bars []contracts.Bar, d time.Time) (contracts.Bar, bool) {
	through := contracts.BarsThrough(bars, d)
	if len(through) == 0 {
		return contracts.Bar{}, false
	}
	return through[len(through)-1], true
}
