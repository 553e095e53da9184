// Package janitor runs the gateway's scheduled background work: the nightly
// budget summary, the hourly conversation sweep, and the periodic connector
// health refresh feeding the metrics gauges. Jobs are plain methods so tests
// call them directly; cron only supplies the schedule.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/conversation"
	"mercator-hq/foreman/pkg/limits/budget"
	"mercator-hq/foreman/pkg/notify"
	"mercator-hq/foreman/pkg/telemetry/metrics"
)

// Cron schedules for the three jobs.
const (
	budgetSummarySchedule = "55 23 * * *" // just before the midnight UTC reset
	conversationSchedule  = "@hourly"
	healthRefreshSchedule = "@every 5m"
)

// budgetWarnPct is the utilization that triggers an ops notification.
const budgetWarnPct = 90

// Janitor owns the cron scheduler and its jobs. Any collaborator may be
// nil; the corresponding job degrades to a no-op or a log line.
type Janitor struct {
	budget     *budget.Tracker
	history    *conversation.Store
	connectors []connectors.Connector
	metrics    *metrics.Collector
	notifier   *notify.Notifier
	logger     *slog.Logger

	cron *cron.Cron

	// warned tracks providers already notified this day so the warning
	// fires once per day, not once per refresh.
	mu     sync.Mutex
	warned map[string]bool
}

// New creates a janitor. Call Start to begin scheduling.
func New(tracker *budget.Tracker, history *conversation.Store, conns []connectors.Connector, collector *metrics.Collector, notifier *notify.Notifier, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		budget:     tracker,
		history:    history,
		connectors: conns,
		metrics:    collector,
		notifier:   notifier,
		logger:     logger,
		cron:       cron.New(),
		warned:     make(map[string]bool),
	}
}

// Start registers the jobs and starts the scheduler.
func (j *Janitor) Start() error {
	jobs := []struct {
		schedule string
		run      func()
	}{
		{budgetSummarySchedule, j.BudgetSummary},
		{conversationSchedule, j.SweepConversations},
		{healthRefreshSchedule, j.RefreshConnectorHealth},
	}
	for _, job := range jobs {
		if _, err := j.cron.AddFunc(job.schedule, job.run); err != nil {
			return err
		}
	}

	j.cron.Start()
	j.logger.Info("janitor started", "jobs", len(jobs))
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor stopped")
}

// BudgetSummary logs each provider's daily consumption before the midnight
// reset wipes the counters.
func (j *Janitor) BudgetSummary() {
	if j.budget == nil {
		return
	}

	for name, s := range j.budget.Summary() {
		j.logger.Info("daily budget summary",
			"provider", name,
			"requests", s.RequestsToday,
			"tokens", s.TokensToday,
			"request_limit", s.DailyRequestLimit,
			"within_budget", s.WithinBudget,
		)
	}

	// New day, new warnings.
	j.mu.Lock()
	j.warned = make(map[string]bool)
	j.mu.Unlock()
}

// SweepConversations prunes expired history entries for idle users.
func (j *Janitor) SweepConversations() {
	if j.history == nil {
		return
	}
	active := j.history.Sweep()
	j.logger.Debug("conversation sweep complete", "active_users", active)
}

// RefreshConnectorHealth probes every connector, updates the health gauges,
// and checks budgets for providers crossing the warning threshold.
func (j *Janitor) RefreshConnectorHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, conn := range j.connectors {
		h := conn.HealthCheck(ctx)
		if j.metrics != nil {
			j.metrics.SetConnectorHealth(conn.Name(), h.OK())
		}
		if !h.OK() {
			j.logger.Warn("connector degraded", "connector", conn.Name(), "status", h.Status)
		}
	}

	j.checkBudgets(ctx)
}

// checkBudgets notifies once per provider per day when utilization crosses
// the warning threshold, and when a budget is exhausted outright.
func (j *Janitor) checkBudgets(ctx context.Context) {
	if j.budget == nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for name, s := range j.budget.Summary() {
		if s.DailyRequestLimit <= 0 || j.warned[name] {
			continue
		}

		if !s.WithinBudget {
			j.warned[name] = true
			j.notifier.BudgetExhausted(ctx, name)
			continue
		}

		pct := s.RequestsToday * 100 / s.DailyRequestLimit
		if pct >= budgetWarnPct {
			j.warned[name] = true
			j.notifier.BudgetWarning(ctx, name, pct)
		}
	}
}
