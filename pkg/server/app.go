package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalSim/internal/service/ratelimit"
	"SignalSim/internal/usecase"
	"SignalSim/pkg/config"
	xhttp "SignalSim/pkg/http"
	pkgkafka "SignalSim/pkg/kafka"
	applogger "SignalSim/pkg/logger"
	"SignalSim/pkg/queue"

	"github.com/segmentio/kafka-go"
)

// App encapsulates the entire application lifecycle. Optional parts (consumer, queue)
// are nil when their backing service is disabled in config.
type App struct {
	cfg      *config.Config
	l        *applogger.Logger
	http     *xhttp.Server
	consumer *pkgkafka.Consumer
	kh       pkgkafka.MessageHandler
	queue    *queue.RedisQueue
	job      queue.Job
	limiter  *ratelimit.Limiter
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalsHandler,
	q *queue.RedisQueue,
	job *usecase.SimulationJob,
	limiter *ratelimit.Limiter,
) *App {
	return &App{
		cfg:      cfg,
		l:        l,
		http:     srv,
		consumer: consumer,
		kh:       kh,
		queue:    q,
		job:      job,
		limiter:  limiter,
	}
}

// Run starts every component and blocks until ctx is done, a signal arrives or the
// HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		a.consumer.WithConsumerHook(a.ingestHook())
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.queue != nil {
		a.queue.RegisterJob(a.job)
		if err := a.queue.Start(); err != nil {
			a.shutdown()
			return err
		}
		a.l.Info("simulation queue started", applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.limiter != nil {
		go a.pruneLimiter(ctx)
	}

	if err := a.http.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		a.shutdown()
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case s := <-sigCh:
		a.l.Info("shutdown signal received", applogger.String("signal", s.String()))
	case <-ctx.Done():
	case err := <-a.http.Errors():
		a.l.Error("http server error", applogger.Error(err))
		runErr = err
	}

	a.shutdown()
	return runErr
}

// shutdown stops intake first (HTTP, consumer), then drains the queue workers.
// Clients are closed by the DI cleanup afterwards.
func (a *App) shutdown() {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.http.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.l.Warn("queue stop error", applogger.Error(err))
		}
	}
	a.l.Info("shutdown complete")
}

// ingestHook traces every failed attempt; the consumer logs the final failure itself.
func (a *App) ingestHook() pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			a.l.Debug("signal message attempt failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.String("code", pkgkafka.ErrorCode(err)),
				applogger.Error(err))
		},
	}
}

func (a *App) pruneLimiter(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.limiter.Prune()
		}
	}
}
