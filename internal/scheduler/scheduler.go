// Package scheduler provides cron-based job scheduling for analysis runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/kvtrace/keyloc/internal/metrics"
	"github.com/kvtrace/keyloc/internal/model"
	"github.com/kvtrace/keyloc/internal/notifier"
)

// DefaultAnalysisTimeout is the default timeout for analysis runs.
const DefaultAnalysisTimeout = 30 * time.Minute

// ErrAnalysisInProgress is returned when a run is requested while another is active.
var ErrAnalysisInProgress = errors.New("analysis already in progress")

// Analyzer produces a report from one complete analysis.
type Analyzer interface {
	Analyze(ctx context.Context) (*model.Report, error)
}

// Scheduler manages scheduled analysis jobs.
type Scheduler struct {
	cron            *cron.Cron
	analyzer        Analyzer
	notifier        notifier.Notifier
	recorder        *metrics.Recorder
	onReport        func(*model.Report)
	analysisTimeout time.Duration

	mu        sync.Mutex
	running   bool
	analyzing int32 // atomic flag to prevent concurrent analysis
}

// New creates a new Scheduler. Cron expressions take a leading seconds field
// and are interpreted in loc. If loc is nil, UTC is used.
func New(a Analyzer, notify notifier.Notifier, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:            cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		analyzer:        a,
		notifier:        notify,
		analysisTimeout: DefaultAnalysisTimeout,
	}
}

// SetAnalysisTimeout sets the timeout for analysis runs.
func (s *Scheduler) SetAnalysisTimeout(timeout time.Duration) {
	s.analysisTimeout = timeout
}

// SetRecorder records every run outcome in r.
func (s *Scheduler) SetRecorder(r *metrics.Recorder) {
	s.recorder = r
}

// OnReport registers fn to receive every successful report.
func (s *Scheduler) OnReport(fn func(*model.Report)) {
	s.onReport = fn
}

// Schedule adds a job with the given cron expression.
func (s *Scheduler) Schedule(cronExpr string) error {
	_, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.runAnalysis("scheduled"); err != nil && !errors.Is(err, ErrAnalysisInProgress) {
			log.Errorf("Scheduled analysis failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.cron.Start()
	s.running = true
	log.Info("Scheduler started")
}

// Stop halts all scheduled jobs. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return context.Background()
	}

	ctx := s.cron.Stop()
	s.running = false
	log.Info("Scheduler stopped")
	return ctx
}

// RunNow triggers an immediate analysis run (bypassing schedule).
func (s *Scheduler) RunNow() error {
	return s.runAnalysis("adhoc")
}

// runAnalysis executes the analysis and sends notifications.
// Uses atomic flag to prevent concurrent analysis runs.
func (s *Scheduler) runAnalysis(reportType string) error {
	// Check if analysis is already running (skip if so)
	if !atomic.CompareAndSwapInt32(&s.analyzing, 0, 1) {
		log.Warn("Analysis already in progress, skipping this run")
		if s.recorder != nil {
			s.recorder.ObserveSkipped()
		}
		return ErrAnalysisInProgress
	}
	defer atomic.StoreInt32(&s.analyzing, 0)

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), s.analysisTimeout)
	defer cancel()

	log.Infof("Starting %s analysis...", reportType)
	start := time.Now()

	report, err := s.analyzer.Analyze(ctx)
	if s.recorder != nil {
		s.recorder.ObserveRun(report, err, time.Since(start))
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("analysis timed out after %v: %w", s.analysisTimeout, err)
		}
		return fmt.Errorf("analysis failed: %w", err)
	}
	report.ReportType = reportType

	log.Infof("Analysis complete: %d samples, %d keys, %d statistics in %v",
		report.Metadata.SampleCount, report.Metadata.KeySeqCount, len(report.Statistics), report.Duration.Round(time.Millisecond))

	if s.onReport != nil {
		s.onReport(report)
	}

	if err := s.notifier.Send(ctx, report); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("notification timed out: %w", err)
		}
		return fmt.Errorf("notification failed: %w", err)
	}

	log.Infof("Notification sent via %s", s.notifier.Name())
	return nil
}

// IsRunning returns whether the scheduler is currently active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsAnalyzing returns whether an analysis is currently in progress.
func (s *Scheduler) IsAnalyzing() bool {
	return atomic.LoadInt32(&s.analyzing) == 1
}
