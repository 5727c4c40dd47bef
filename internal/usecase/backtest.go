package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"LiqPool/internal/domain/models"
	drepo "LiqPool/internal/domain/repository"
	"LiqPool/internal/services/pool"
	"LiqPool/pkg/clock"
	"LiqPool/pkg/logger"
)

// BacktestSummary is the outcome of one replay. Everything except RunID and
// Elapsed is a pure function of the input bars and the configuration.
type BacktestSummary struct {
	RunID      string                       `json:"run_id"`
	Symbol     string                       `json:"symbol"`
	From       time.Time                    `json:"from"`
	To         time.Time                    `json:"to"`
	Bars       int                          `json:"bars"`
	Dropped    map[string]int               `json:"dropped"`
	Completed  map[models.Resolution]int    `json:"completed"`
	Patterns   map[models.PatternKind]int   `json:"patterns"`
	PoolEvents map[models.PoolEventKind]int `json:"pool_events"`
	ZoneEvents map[models.ZoneEventKind]int `json:"zone_events"`
	Zones      []models.Zone                `json:"zones"`
	Registry   pool.Metrics                 `json:"registry"`
	Elapsed    time.Duration                `json:"elapsed"`
}

func newSummary(symbol string, from, to time.Time) *BacktestSummary {
	return &BacktestSummary{
		RunID:      uuid.New().String(),
		Symbol:     symbol,
		From:       from,
		To:         to,
		Dropped:    make(map[string]int),
		Completed:  make(map[models.Resolution]int),
		Patterns:   make(map[models.PatternKind]int),
		PoolEvents: make(map[models.PoolEventKind]int),
		ZoneEvents: make(map[models.ZoneEventKind]int),
	}
}

func (s *BacktestSummary) add(r Result) {
	if r.Dropped != "" {
		s.Dropped[r.Dropped]++
	}
	for res, bars := range r.Bars {
		s.Completed[res] += len(bars)
	}
	for _, ev := range r.Patterns {
		s.Patterns[ev.Kind]++
	}
	for _, ev := range r.Pools {
		s.PoolEvents[ev.Kind]++
	}
	for _, ev := range r.Zones {
		s.ZoneEvents[ev.Kind]++
	}
}

// Backtester replays stored bars through a pipeline driven by a simulated
// clock. The clock is moved to each bar's close before the bar is fed, so
// expiries fire exactly as they would have live.
type Backtester struct {
	store      drepo.BarStore
	pipe       *Pipeline
	clk        *clock.Sim
	basePeriod time.Duration
	proc       *EventProcessor
	log        *logger.Logger
}

// NewBacktester wires a replay. pipe must have been built on clk. proc may be
// nil to keep results in memory only.
func NewBacktester(store drepo.BarStore, pipe *Pipeline, clk *clock.Sim, basePeriod time.Duration, proc *EventProcessor, log *logger.Logger) *Backtester {
	if log == nil {
		log = logger.Nop()
	}
	return &Backtester{
		store:      store,
		pipe:       pipe,
		clk:        clk,
		basePeriod: basePeriod,
		proc:       proc,
		log:        log.Component("backtest"),
	}
}

// Run replays [from, to). Invalid bars are counted and skipped; an ordering
// error under the raise policy aborts the run.
func (b *Backtester) Run(ctx context.Context, from, to time.Time) (*BacktestSummary, error) {
	start := time.Now()
	symbol := b.pipe.Symbol()
	sum := newSummary(symbol, from, to)
	log := b.log.With(logger.String("run_id", sum.RunID))

	bars, err := b.store.GetBars(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	log.Info("backtest started", logger.String("symbol", symbol), logger.Int("bars", len(bars)))

	for i, bar := range bars {
		if i%1000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if bar.Symbol == "" {
			bar.Symbol = symbol
		}
		if end := bar.Ts.Add(b.basePeriod); end.After(b.clk.Now()) {
			if err := b.clk.Set(end); err != nil {
				return nil, err
			}
		}
		sum.Bars++

		r, err := b.pipe.OnBar(bar)
		if err != nil {
			if models.IsValidationError(err) {
				log.Warn("skip invalid bar", logger.Time("ts", bar.Ts), logger.Error(err))
				sum.add(r)
				continue
			}
			return nil, fmt.Errorf("bar %s: %w", bar.Ts.Format(time.RFC3339), err)
		}
		sum.add(r)
		if err := b.emit(ctx, symbol, r); err != nil {
			return nil, err
		}
	}

	r, err := b.pipe.Flush()
	if err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	sum.add(r)
	if err := b.emit(ctx, symbol, r); err != nil {
		return nil, err
	}

	snap := b.pipe.Snapshot()
	sum.Zones = snap.Zones
	sort.Slice(sum.Zones, func(i, j int) bool { return sum.Zones[i].ID < sum.Zones[j].ID })
	sum.Registry = snap.Metrics
	sum.Elapsed = time.Since(start)

	log.Info("backtest finished",
		logger.Int("bars", sum.Bars),
		logger.Int64("pools_created", sum.Registry.Created),
		logger.Int("zones", len(sum.Zones)),
		logger.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

func (b *Backtester) emit(ctx context.Context, symbol string, r Result) error {
	if b.proc == nil {
		return nil
	}
	return b.proc.Process(ctx, symbol, r)
}

// Render writes the summary as two tables: counters, then final zones.
func (s *BacktestSummary) Render(w io.Writer) error {
	fmt.Fprintf(w, "run %s  %s  %s -> %s\n", s.RunID, s.Symbol,
		s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))

	counts := tablewriter.NewWriter(w)
	counts.Header("Metric", "Value")
	rows := [][]string{
		{"bars", fmt.Sprint(s.Bars)},
	}
	for _, k := range sortedKeys(s.Dropped) {
		rows = append(rows, []string{"dropped " + k, fmt.Sprint(s.Dropped[k])})
	}
	res := make([]models.Resolution, 0, len(s.Completed))
	for r := range s.Completed {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	for _, r := range res {
		rows = append(rows, []string{"bars " + r.String(), fmt.Sprint(s.Completed[r])})
	}
	for _, k := range []models.PatternKind{models.PatternGap, models.PatternSwing} {
		rows = append(rows, []string{"patterns " + string(k), fmt.Sprint(s.Patterns[k])})
	}
	for _, k := range []models.PoolEventKind{models.PoolCreated, models.PoolTouch, models.PoolExpire, models.PoolPurged} {
		rows = append(rows, []string{"pools " + string(k), fmt.Sprint(s.PoolEvents[k])})
	}
	for _, k := range []models.ZoneEventKind{models.ZoneCreated, models.ZoneUpdated, models.ZoneExpired} {
		rows = append(rows, []string{"zones " + string(k), fmt.Sprint(s.ZoneEvents[k])})
	}
	rows = append(rows, []string{"pools live at end", fmt.Sprint(s.Registry.ActiveCount)})
	for _, r := range rows {
		if err := counts.Append(r[0], r[1]); err != nil {
			return err
		}
	}
	if err := counts.Render(); err != nil {
		return err
	}

	if len(s.Zones) == 0 {
		return nil
	}
	zones := tablewriter.NewWriter(w)
	zones.Header("Zone", "Side", "Bottom", "Top", "Strength", "Members")
	for _, z := range s.Zones {
		err := zones.Append(
			z.ID,
			string(z.Side),
			fmt.Sprintf("%.4f", z.Bottom),
			fmt.Sprintf("%.4f", z.Top),
			fmt.Sprintf("%.3f", z.Strength),
			fmt.Sprint(z.MemberCount()),
		)
		if err != nil {
			return err
		}
	}
	return zones.Render()
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
