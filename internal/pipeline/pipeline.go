package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Pirikara/filesentry/internal/filter"
	"github.com/Pirikara/filesentry/internal/monitor"
	"github.com/Pirikara/filesentry/internal/quarantine"
	"github.com/Pirikara/filesentry/internal/record"
	"github.com/Pirikara/filesentry/internal/siem"
	"github.com/Pirikara/filesentry/internal/signature"
)

// Config wires the pipeline's collaborators together.
type Config struct {
	Filter     *filter.Filter
	Matcher    *signature.Matcher
	Enricher   *record.Enricher
	Quarantine *quarantine.Manager // nil disables quarantine
	SIEM       *siem.Logger
	Watcher    monitor.Watcher
	Debounce   *filter.Debounce
	Logger     *zap.Logger

	Workers       int
	SettleDelay   time.Duration
	SweepInterval time.Duration

	// Reported in the startup event.
	MonitoredPaths []string
	Adapter        string
}

// Pipeline drives filesystem events through filtering, signature
// classification, enrichment, SIEM emission, and quarantine.
type Pipeline struct {
	filter   *filter.Filter
	matcher  *signature.Matcher
	enricher *record.Enricher
	quar     *quarantine.Manager
	siem     *siem.Logger
	watcher  monitor.Watcher
	debounce *filter.Debounce
	log      *zap.Logger

	workers int
	settle  time.Duration
	sweep   time.Duration

	paths   []string
	adapter string

	stats Stats
}

// New creates a pipeline from its collaborators.
func New(cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Second
	}

	return &Pipeline{
		filter:   cfg.Filter,
		matcher:  cfg.Matcher,
		enricher: cfg.Enricher,
		quar:     cfg.Quarantine,
		siem:     cfg.SIEM,
		watcher:  cfg.Watcher,
		debounce: cfg.Debounce,
		log:      log,
		workers:  workers,
		settle:   cfg.SettleDelay,
		sweep:    sweep,
		paths:    cfg.MonitoredPaths,
		adapter:  cfg.Adapter,
	}
}

// Run starts the watcher and processes events until the context is
// canceled or the event source drains. SYSTEM_START lands before the
// first event is handled and SYSTEM_STOP after the last.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	p.siem.Emit(siem.EventSystemStart, siem.SeverityInfo, p.startData())
	p.log.Info("monitoring started",
		zap.Strings("paths", p.paths),
		zap.String("adapter", p.adapter),
		zap.Int("workers", p.workers))

	var workersWG sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			for ev := range p.watcher.Events() {
				p.Process(ev)
			}
		}()
	}

	var errWG sync.WaitGroup
	errWG.Add(1)
	go func() {
		defer errWG.Done()
		for err := range p.watcher.Errors() {
			p.log.Warn("watcher error", zap.Error(err))
		}
	}()

	sweepStop := make(chan struct{})
	var sweepWG sync.WaitGroup
	if p.debounce != nil {
		sweepWG.Add(1)
		go func() {
			defer sweepWG.Done()
			ticker := time.NewTicker(p.sweep)
			defer ticker.Stop()
			for {
				select {
				case <-sweepStop:
					return
				case <-ticker.C:
					if n := p.debounce.Sweep(time.Now()); n > 0 {
						p.log.Debug("debounce entries expired", zap.Int("count", n))
					}
				}
			}
		}()
	}

	var stopOnce sync.Once
	stop := func() { p.watcher.Stop() }

	runExit := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stopOnce.Do(stop)
		case <-runExit:
		}
	}()

	// Workers finish when the event channel closes, either because the
	// watcher was stopped or because a one-shot source drained.
	workersWG.Wait()
	stopOnce.Do(stop)
	close(runExit)
	errWG.Wait()
	close(sweepStop)
	sweepWG.Wait()

	reason := "source_drained"
	if ctx.Err() != nil {
		reason = "user_interrupt"
	}
	p.siem.Emit(siem.EventSystemStop, siem.SeverityInfo, map[string]interface{}{
		"reason": reason,
	})
	p.log.Info("monitoring stopped", zap.String("reason", reason))
	return nil
}

// Process runs one event through the per-file state machine and returns
// its terminal outcome. The mismatch event is emitted before any
// quarantine attempt, so the detection survives a failed response.
func (p *Pipeline) Process(ev monitor.Event) Outcome {
	// Fresh files may still be mid-write when the create lands.
	if ev.Kind == monitor.KindCreated && p.settle > 0 {
		time.Sleep(p.settle)
	}

	if !p.filter.Eligible(ev.Path) {
		return OutcomeIneligible
	}
	atomic.AddInt64(&p.stats.Inspected, 1)

	res := p.matcher.Classify(ev.Path)
	if res.ReadErr != nil {
		p.log.Debug("header read failed",
			zap.String("path", ev.Path),
			zap.Error(res.ReadErr))
		return OutcomeClean
	}
	if !res.Mismatch {
		return OutcomeClean
	}

	atomic.AddInt64(&p.stats.Mismatches, 1)
	det := p.enricher.Enrich(ev.Path, res.Extension, res.ActualType, res.Header)

	p.log.Warn("extension mismatch detected",
		zap.String("path", ev.Path),
		zap.String("claimed", res.Extension),
		zap.String("actual", res.ActualType))
	p.siem.Emit(siem.EventExtensionMismatch, siem.SeverityHigh, det.Map())

	if p.quar == nil || p.quar.Disabled() {
		return OutcomeRecordedOnly
	}

	entry, err := p.quar.Quarantine(ev.Path, det)
	if err != nil {
		if errors.Is(err, quarantine.ErrDisabled) {
			return OutcomeRecordedOnly
		}
		atomic.AddInt64(&p.stats.Failures, 1)
		p.log.Error("quarantine failed",
			zap.String("path", ev.Path),
			zap.Error(err))
		p.siem.Emit(siem.EventQuarantineFailed, siem.SeverityCritical, map[string]interface{}{
			"filepath": ev.Path,
			"error":    err.Error(),
		})
		return OutcomeQuarantineFailed
	}

	atomic.AddInt64(&p.stats.Quarantined, 1)
	p.log.Info("file quarantined",
		zap.String("path", ev.Path),
		zap.String("quarantine_path", entry.QuarantinePath))
	p.siem.Emit(siem.EventFileQuarantined, siem.SeverityInfo, map[string]interface{}{
		"original_path":   ev.Path,
		"quarantine_path": entry.QuarantinePath,
		"quarantine_id":   entry.ID,
		"file_hash":       det.SHA256,
	})
	return OutcomeQuarantined
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Inspected:   atomic.LoadInt64(&p.stats.Inspected),
		Mismatches:  atomic.LoadInt64(&p.stats.Mismatches),
		Quarantined: atomic.LoadInt64(&p.stats.Quarantined),
		Failures:    atomic.LoadInt64(&p.stats.Failures),
	}
}

func (p *Pipeline) startData() map[string]interface{} {
	active := p.quar != nil && !p.quar.Disabled()
	data := map[string]interface{}{
		"monitored_paths":    p.paths,
		"adapter":            p.adapter,
		"workers":            p.workers,
		"quarantine_enabled": active,
	}
	if active {
		data["quarantine_path"] = p.quar.Root()
	}
	return data
}
