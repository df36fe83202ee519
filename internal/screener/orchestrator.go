package screener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/marketdata"
	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

var (
	// Metrics for the scan cycle
	scanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_scan_cycles_total",
			Help: "Total number of scan cycles by status",
		},
		[]string{"status"},
	)

	ticksSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screener_ticks_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running",
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screener_cycle_duration_seconds",
			Help:    "Scan cycle duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	symbolOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screener_symbol_outcomes_total",
			Help: "Per-symbol outcomes across scan cycles",
		},
		[]string{"outcome"},
	)

	universeSizeGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screener_universe_size",
			Help: "Symbols returned by the last universe fetch",
		},
	)

	evaluationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screener_evaluations_in_flight",
			Help: "Fetch and evaluation workers currently in flight",
		},
	)

	signalStrengthHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screener_signal_strength",
			Help:    "Strength of evaluated decisions",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

// DecisionStore persists every evaluated decision.
type DecisionStore interface {
	SaveDecisions(ctx context.Context, decisions []*models.SignalDecision) error
}

// Dispatcher routes accepted decisions to notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, decisions []*models.SignalDecision)
}

// Stats holds orchestrator counters. Last* fields describe the most
// recently completed cycle.
type Stats struct {
	mu sync.RWMutex

	Running           bool          `json:"running"`
	CyclesCompleted   int64         `json:"cycles_completed"`
	CyclesFailed      int64         `json:"cycles_failed"`
	TicksSkipped      int64         `json:"ticks_skipped"`
	LastCycleAt       time.Time     `json:"last_cycle_at"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	MaxCycleDuration  time.Duration `json:"max_cycle_duration"`
	LastUniverse      int           `json:"last_universe"`
	LastGated         int           `json:"last_gated"`
	LastEvaluated     int           `json:"last_evaluated"`
	LastAccepted      int           `json:"last_accepted"`
	LastRejected      int           `json:"last_rejected"`
	LastInsufficient  int           `json:"last_insufficient"`
	LastFailures      int           `json:"last_failures"`
	TotalAccepted     int64         `json:"total_accepted"`
	TotalRejected     int64         `json:"total_rejected"`
	TotalFailures     int64         `json:"total_failures"`
}

// Orchestrator drives the scan loop: every tick it fetches the universe,
// pre-filters it, fans the survivors out to a bounded worker pool for
// snapshot fetch and evaluation, then reports the completed cycle. A tick
// arriving while a cycle is still running is skipped, never queued.
type Orchestrator struct {
	cfg        config.ScreenerConfig
	strategy   *config.StrategyConfig
	provider   marketdata.Provider
	engine     *Engine
	store      DecisionStore
	dispatcher Dispatcher

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	cycleActive atomic.Bool
	stats       Stats
}

// NewOrchestrator creates a scan orchestrator. Store and dispatcher may
// be nil; decisions are then only logged.
func NewOrchestrator(
	cfg config.ScreenerConfig,
	strategy *config.StrategyConfig,
	provider marketdata.Provider,
	engine *Engine,
	store DecisionStore,
	dispatcher Dispatcher,
) *Orchestrator {
	if provider == nil {
		panic("provider cannot be nil")
	}
	if engine == nil {
		panic("engine cannot be nil")
	}
	if strategy == nil {
		panic("strategy cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		strategy:   strategy,
		provider:   provider,
		engine:     engine,
		store:      store,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins the scan loop. The first cycle runs immediately.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true
	o.mu.Unlock()

	o.stats.mu.Lock()
	o.stats.Running = true
	o.stats.mu.Unlock()

	logger.Info("Starting screener",
		logger.Duration("scan_interval", o.cfg.ScanInterval),
		logger.Int("max_concurrent", o.cfg.MaxConcurrent),
		logger.Duration("symbol_timeout", o.cfg.SymbolTimeout),
	)

	o.wg.Add(1)
	go o.run()

	return nil
}

// Stop halts the loop and waits for any in-flight cycle to wind down.
// An interrupted cycle reports nothing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	logger.Info("Stopping screener")
	o.cancel()
	o.wg.Wait()

	o.stats.mu.Lock()
	o.stats.Running = false
	o.stats.mu.Unlock()
	logger.Info("Screener stopped")
}

// IsRunning returns whether the scan loop is running.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// GetStats returns a copy of the current counters.
func (o *Orchestrator) GetStats() Stats {
	o.stats.mu.RLock()
	defer o.stats.mu.RUnlock()

	return Stats{
		Running:           o.stats.Running,
		CyclesCompleted:   o.stats.CyclesCompleted,
		CyclesFailed:      o.stats.CyclesFailed,
		TicksSkipped:      o.stats.TicksSkipped,
		LastCycleAt:       o.stats.LastCycleAt,
		LastCycleDuration: o.stats.LastCycleDuration,
		MaxCycleDuration:  o.stats.MaxCycleDuration,
		LastUniverse:      o.stats.LastUniverse,
		LastGated:         o.stats.LastGated,
		LastEvaluated:     o.stats.LastEvaluated,
		LastAccepted:      o.stats.LastAccepted,
		LastRejected:      o.stats.LastRejected,
		LastInsufficient:  o.stats.LastInsufficient,
		LastFailures:      o.stats.LastFailures,
		TotalAccepted:     o.stats.TotalAccepted,
		TotalRejected:     o.stats.TotalRejected,
		TotalFailures:     o.stats.TotalFailures,
	}
}

// run is the main scan loop.
func (o *Orchestrator) run() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.ScanInterval)
	defer ticker.Stop()

	o.startCycle()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.startCycle()
		}
	}
}

// startCycle launches one cycle unless the previous one is still running,
// in which case the tick is counted as skipped.
func (o *Orchestrator) startCycle() {
	if !o.cycleActive.CompareAndSwap(false, true) {
		ticksSkippedTotal.Inc()
		o.stats.mu.Lock()
		o.stats.TicksSkipped++
		o.stats.mu.Unlock()
		logger.Warn("Scan tick skipped, previous cycle still running",
			logger.Duration("scan_interval", o.cfg.ScanInterval))
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.cycleActive.Store(false)
		_ = o.RunCycle(o.ctx)
	}()
}

// symbolOutcome classifies what happened to one candidate symbol.
type symbolOutcome struct {
	symbol       string
	decision     *models.SignalDecision
	gateReason   string
	insufficient bool
	err          error
}

// RunCycle executes a single scan cycle synchronously. Exported for
// tests; the loop calls it on every tick.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := time.Now()
	cycleID := logger.NewTraceID()

	universe, err := o.provider.FetchUniverse(ctx)
	if err != nil {
		scanCyclesTotal.WithLabelValues("failed").Inc()
		o.stats.mu.Lock()
		o.stats.CyclesFailed++
		o.stats.mu.Unlock()
		logger.Error("Universe fetch failed",
			logger.ErrorField(err),
			logger.String("cycle_id", cycleID))
		return err
	}
	universeSizeGauge.Set(float64(len(universe)))

	candidates := make([]models.Quote, 0, len(universe))
	gated := 0
	for i := range universe {
		if reason, ok := QuoteGate(o.strategy, &universe[i]); !ok {
			gated++
			symbolOutcomesTotal.WithLabelValues("gated").Inc()
			logger.Debug("Symbol gated",
				logger.String("symbol", universe[i].Symbol),
				logger.String("reason", reason),
				logger.String("cycle_id", cycleID))
			continue
		}
		candidates = append(candidates, universe[i])
	}

	outcomes := o.evaluateCandidates(ctx, cycleID, candidates)

	if ctx.Err() != nil {
		// Shutdown mid-cycle: report nothing.
		scanCyclesTotal.WithLabelValues("aborted").Inc()
		return ctx.Err()
	}

	decisions := make([]*models.SignalDecision, 0, len(outcomes))
	accepted := make([]*models.SignalDecision, 0)
	insufficient, failures := 0, 0
	for i := range outcomes {
		out := &outcomes[i]
		switch {
		case out.decision != nil:
			decisions = append(decisions, out.decision)
			signalStrengthHist.Observe(out.decision.Strength)
			if out.decision.Accepted {
				accepted = append(accepted, out.decision)
				symbolOutcomesTotal.WithLabelValues("accepted").Inc()
			} else {
				symbolOutcomesTotal.WithLabelValues("rejected").Inc()
			}
		case out.gateReason != "":
			gated++
			symbolOutcomesTotal.WithLabelValues("gated").Inc()
		case out.insufficient:
			insufficient++
			symbolOutcomesTotal.WithLabelValues("insufficient_data").Inc()
		case out.err != nil:
			failures++
			if errors.Is(out.err, models.ErrFetchTimeout) || errors.Is(out.err, context.DeadlineExceeded) {
				symbolOutcomesTotal.WithLabelValues("timeout").Inc()
			} else {
				symbolOutcomesTotal.WithLabelValues("failed").Inc()
			}
			logger.Warn("Symbol evaluation failed",
				logger.String("symbol", out.symbol),
				logger.ErrorField(out.err),
				logger.String("cycle_id", cycleID))
		}
	}

	// Report phase: the cycle is complete, persist and notify.
	if o.store != nil && len(decisions) > 0 {
		if err := o.store.SaveDecisions(ctx, decisions); err != nil {
			logger.Error("Failed to save decisions",
				logger.ErrorField(err),
				logger.Int("count", len(decisions)),
				logger.String("cycle_id", cycleID))
		}
	}
	if o.dispatcher != nil && len(accepted) > 0 {
		o.dispatcher.Dispatch(ctx, accepted)
	}

	elapsed := time.Since(start)
	scanCyclesTotal.WithLabelValues("ok").Inc()
	cycleDuration.Observe(elapsed.Seconds())

	o.stats.mu.Lock()
	o.stats.CyclesCompleted++
	o.stats.LastCycleAt = start.UTC()
	o.stats.LastCycleDuration = elapsed
	if elapsed > o.stats.MaxCycleDuration {
		o.stats.MaxCycleDuration = elapsed
	}
	o.stats.LastUniverse = len(universe)
	o.stats.LastGated = gated
	o.stats.LastEvaluated = len(decisions)
	o.stats.LastAccepted = len(accepted)
	o.stats.LastRejected = len(decisions) - len(accepted)
	o.stats.LastInsufficient = insufficient
	o.stats.LastFailures = failures
	o.stats.TotalAccepted += int64(len(accepted))
	o.stats.TotalRejected += int64(len(decisions) - len(accepted))
	o.stats.TotalFailures += int64(failures)
	o.stats.mu.Unlock()

	logger.Info("Scan cycle complete",
		logger.String("cycle_id", cycleID),
		logger.Duration("duration", elapsed),
		logger.Int("universe", len(universe)),
		logger.Int("gated", gated),
		logger.Int("evaluated", len(decisions)),
		logger.Int("accepted", len(accepted)),
		logger.Int("insufficient_data", insufficient),
		logger.Int("failures", failures),
	)

	if elapsed > o.cfg.ScanInterval {
		logger.Warn("Scan cycle exceeded interval",
			logger.Duration("duration", elapsed),
			logger.Duration("scan_interval", o.cfg.ScanInterval))
	}

	return nil
}

// evaluateCandidates fans candidates out to at most MaxConcurrent
// in-flight fetch+evaluate workers.
func (o *Orchestrator) evaluateCandidates(ctx context.Context, cycleID string, candidates []models.Quote) []symbolOutcome {
	results := make([]symbolOutcome, len(candidates))
	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.evaluateSymbol(ctx, cycleID, candidates[i].Symbol)
		}(i)
	}

	wg.Wait()
	return results
}

// evaluateSymbol fetches and evaluates one symbol under its own timeout.
// A failure here never affects other symbols in the cycle.
func (o *Orchestrator) evaluateSymbol(ctx context.Context, cycleID, symbol string) symbolOutcome {
	out := symbolOutcome{symbol: symbol}

	evaluationsInFlight.Inc()
	defer evaluationsInFlight.Dec()

	symbolCtx, cancel := context.WithTimeout(ctx, o.cfg.SymbolTimeout)
	defer cancel()

	snapshot, err := o.provider.FetchSnapshot(symbolCtx, symbol)
	if err != nil {
		out.err = err
		return out
	}

	decision, err := o.engine.Evaluate(symbolCtx, snapshot, cycleID)
	if err != nil {
		var gateErr *GateError
		switch {
		case errors.As(err, &gateErr):
			out.gateReason = gateErr.Reason
		case errors.Is(err, models.ErrInsufficientData):
			out.insufficient = true
		default:
			out.err = err
		}
		return out
	}

	out.decision = decision
	return out
}
