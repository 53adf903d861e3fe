// Package jobs runs scheduled maintenance tasks.
package jobs

import (
	"context"
	"time"

	"hms/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Summarizer interface {
	SummarizeDay(ctx context.Context, date string) ([]models.QueueSummary, error)
}

type DailyReport struct {
	queues Summarizer
	logger zerolog.Logger
	now    func() time.Time
}

func NewDailyReport(queues Summarizer, logger zerolog.Logger) *DailyReport {
	return &DailyReport{
		queues: queues,
		logger: logger.With().Str("job", "daily_report").Logger(),
		now:    time.Now,
	}
}

// Run summarises the previous calendar day.
func (r *DailyReport) Run(ctx context.Context) ([]models.QueueSummary, error) {
	day := r.now().AddDate(0, 0, -1).Format(models.DateLayout)
	return r.RunFor(ctx, day)
}

func (r *DailyReport) RunFor(ctx context.Context, day string) ([]models.QueueSummary, error) {
	summaries, err := r.queues.SummarizeDay(ctx, day)
	if err != nil {
		r.logger.Error().Err(err).Str("date", day).Msg("summarize day")
		return nil, err
	}
	for _, s := range summaries {
		r.logger.Info().
			Str("date", day).
			Str("hospital_id", s.Key.HospitalID).
			Str("queue_name", s.Key.QueueName).
			Int("issued", s.LastAssignedTurn).
			Int("finished", s.Finished).
			Int("waiting", s.Waiting).
			Int("in_consult", s.InConsult).
			Msg("queue day summary")
	}
	r.logger.Info().Str("date", day).Int("queues", len(summaries)).Msg("daily report done")
	return summaries, nil
}

// Scheduler wraps a cron runner for the report.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(spec string, report *DailyReport, logger zerolog.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = report.Run(ctx)
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("schedule", spec).Msg("daily report scheduled")
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for a running report to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
