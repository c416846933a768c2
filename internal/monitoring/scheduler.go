package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/qb-categorizer-be/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// learningResyncSchedule is how often unsynced learning examples are retried.
const learningResyncSchedule = "@every 5m"

// Scheduler runs the periodic import, categorization and learning resync jobs.
type Scheduler struct {
	clientSvc      services.ClientServiceProvider
	transactionSvc services.TransactionServiceProvider
	categorizer    services.CategorizationServiceProvider
	learningSvc    services.LearningServiceProvider
	lookback       time.Duration
	cron           *cron.Cron
	now            func() time.Time
}

// NewScheduler creates a new scheduler. syncSchedule is a standard five-field cron
// expression or a descriptor such as "@daily".
func NewScheduler(syncSchedule string, lookbackDays int, clientSvc services.ClientServiceProvider, transactionSvc services.TransactionServiceProvider, categorizer services.CategorizationServiceProvider, learningSvc services.LearningServiceProvider) (*Scheduler, error) {
	s := &Scheduler{
		clientSvc:      clientSvc,
		transactionSvc: transactionSvc,
		categorizer:    categorizer,
		learningSvc:    learningSvc,
		lookback:       time.Duration(lookbackDays) * 24 * time.Hour,
		cron:           cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		now:            time.Now,
	}

	if _, err := s.cron.AddFunc(syncSchedule, func() { s.SyncAllClients(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", syncSchedule, err)
	}
	if _, err := s.cron.AddFunc(learningResyncSchedule, func() { s.ResyncLearningExamples(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid learning resync schedule: %w", err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Starting background scheduler...")
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Info().Msg("Stopped background scheduler.")
	case <-ctx.Done():
		log.Warn().Msg("Background scheduler jobs still running at shutdown")
	}
}

// SyncAllClients imports recent purchases for every active client and then
// categorizes whatever is pending. Failures for one client do not stop the rest.
func (s *Scheduler) SyncAllClients(ctx context.Context) {
	clients, err := s.clientSvc.GetActiveClients()
	if err != nil {
		log.Error().Err(err).Msg("Scheduler: failed to retrieve active clients")
		return
	}

	end := s.now()
	start := end.Add(-s.lookback)
	for _, client := range clients {
		logger := log.With().Str("client_id", client.ID).Logger()

		synced, err := s.transactionSvc.SyncTransactions(ctx, client, start, end)
		if err != nil {
			logger.Error().Err(err).Msg("Scheduler: transaction import failed")
			continue
		}
		logger.Info().Int("stored", synced.TransactionsStored).Int("skipped", synced.TransactionsSkipped).Msg("Scheduler: transactions imported")

		categorized, err := s.categorizer.CategorizeTransactions(ctx, client, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Scheduler: categorization failed")
			continue
		}
		logger.Info().Int("categorized", categorized.Categorized).Int("failed", categorized.Failed).Msg("Scheduler: transactions categorized")
	}
}

// ResyncLearningExamples retries indexing of learning examples whose vector upsert failed.
func (s *Scheduler) ResyncLearningExamples(ctx context.Context) {
	n, err := s.learningSvc.SyncPendingExamples(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduler: learning example resync failed")
		return
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("Scheduler: learning examples indexed")
	}
}
