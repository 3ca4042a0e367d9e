package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/tasks"
	"go.uber.org/zap"
)

type Handlers struct {
	Email        *tasks.EmailHandler
	GraceExpire  *tasks.LicenseGraceExpireHandler
	TrialPurge   *tasks.TrialPurgeHandler
	WebhookPurge *tasks.WebhookPurgeHandler
}

func NewMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeEmailSend, h.Email.ProcessTask)
	mux.HandleFunc(tasks.TypeLicenseGraceExpire, h.GraceExpire.ProcessTask)
	mux.HandleFunc(tasks.TypeTrialPurge, h.TrialPurge.ProcessTask)
	mux.HandleFunc(tasks.TypeWebhookPurge, h.WebhookPurge.ProcessTask)
	return mux
}

// Run starts the asynq server and the periodic scheduler and blocks until ctx is
// cancelled, then drains both.
func Run(ctx context.Context, redisOpt asynq.RedisConnOpt, cfg *config.WorkerConfig, h Handlers, logger *zap.Logger) error {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
				tasks.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Named("AsynqServerErrorHandler").Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	logger.Info("Starting Asynq Server...", zap.Int("concurrency", concurrency))
	if err := srv.Start(NewMux(h)); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	var scheduler *asynq.Scheduler
	if !cfg.DisableScheduling {
		scheduler = asynq.NewScheduler(
			redisOpt,
			&asynq.SchedulerOpts{
				Logger: NewAsynqLoggerAdapter(logger.Named("AsynqScheduler")),
			},
		)
		if err := registerPeriodic(scheduler, cfg, logger); err != nil {
			srv.Shutdown()
			return err
		}
		logger.Info("Starting Asynq Scheduler...")
		if err := scheduler.Start(); err != nil {
			srv.Shutdown()
			return fmt.Errorf("asynq scheduler error: %w", err)
		}
	}

	<-ctx.Done()

	if scheduler != nil {
		logger.Info("Shutting down Asynq Scheduler...")
		scheduler.Shutdown()
	}
	logger.Info("Shutting down Asynq Server...")
	srv.Shutdown()
	logger.Info("Asynq workers stopped.")
	return nil
}

func registerPeriodic(scheduler *asynq.Scheduler, cfg *config.WorkerConfig, logger *zap.Logger) error {
	periodic := []struct {
		spec string
		task *asynq.Task
	}{
		{orDefault(cfg.GraceSweepCron, "@every 1h"), tasks.NewLicenseGraceExpireTask()},
		{orDefault(cfg.TrialPurgeCron, "@daily"), tasks.NewTrialPurgeTask()},
		{orDefault(cfg.WebhookPurgeCron, "@daily"), tasks.NewWebhookPurgeTask()},
	}
	for _, p := range periodic {
		entryID, err := scheduler.Register(p.spec, p.task)
		if err != nil {
			logger.Error("Could not register periodic task", zap.String("task_type", p.task.Type()), zap.Error(err))
			return fmt.Errorf("scheduler registration error: %w", err)
		}
		logger.Info("Registered periodic task",
			zap.String("task_type", p.task.Type()),
			zap.String("entry_id", entryID),
			zap.String("schedule", p.spec),
		)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type asynqLoggerAdapter struct {
	logger *zap.Logger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
