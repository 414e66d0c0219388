// Package worker holds the background jobs run by the report worker.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/report"
)

// RecentInReport is how many of the latest transactions a report lists.
const RecentInReport = 10

// ReportSource is the slice of a session the report job reads from.
type ReportSource interface {
	Owner() string
	Load(ctx context.Context) error
	Totals(ctx context.Context) (core.Totals, error)
	Report(period core.Period, kind core.Kind) report.Report
	Recent(n int) []core.Transaction
}

// Publisher delivers report messages.
type Publisher interface {
	PublishReport(ctx context.Context, msg *amqp.ReportMessage) error
}

// ReportJob reloads the session, builds the period report and publishes it.
type ReportJob struct {
	session   ReportSource
	publisher Publisher
	period    core.Period
	logger    *log.Logger
}

func NewReportJob(session ReportSource, publisher Publisher, period core.Period, logger *log.Logger) *ReportJob {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportJob{
		session:   session,
		publisher: publisher,
		period:    period,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

func (j *ReportJob) Name() string {
	return "report:" + string(j.period)
}

// Run publishes one report. A failed reload is not fatal when the session
// can still serve its previous working set; totals are best effort.
func (j *ReportJob) Run(ctx context.Context) error {
	if err := j.session.Load(ctx); err != nil {
		j.logger.WarnContext(ctx, "Reload failed, reporting on previous data",
			log.FieldError, err,
			log.FieldPeriod, string(j.period))
	}

	r := j.session.Report(j.period, core.Expense)

	var totals *core.Totals
	if t, err := j.session.Totals(ctx); err != nil {
		j.logger.WarnContext(ctx, "Totals unavailable for report", log.FieldError, err)
	} else {
		totals = &t
	}

	msg := amqp.NewReportMessage(j.session.Owner(), r, totals, j.session.Recent(RecentInReport))
	if err := j.publisher.PublishReport(ctx, msg); err != nil {
		return fmt.Errorf("publish %s report: %w", j.period, err)
	}

	fields := log.NewFields().
		WithOperation(log.OpPublish).
		WithPeriod(j.period).
		WithCount(r.Count)
	fields["message_id"] = msg.ID
	fields["insight"] = string(r.Insight.Level)
	j.logger.LogFields(ctx, slog.LevelInfo, "Report published", fields)
	return nil
}
