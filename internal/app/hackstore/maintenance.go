package hackstore

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
)

// Recoverer доигрывает открытые намерения журнала.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Compactor чистит индекс сущности от висячих идентификаторов.
type Compactor interface {
	Compact(ctx context.Context) (int, error)
	Entity() string
}

// Purger удаляет ключи с истёкшим TTL.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Maintenance фоновые задачи: восстановление намерений и уборка индексов.
type Maintenance struct {
	cron       *cron.Cron
	recoverer  Recoverer
	compactors []Compactor
	purger     Purger
	log        *slog.Logger
}

// NewMaintenance регистрирует задачи по расписаниям recoverySpec и compactionSpec.
func NewMaintenance(recoverySpec, compactionSpec string, recoverer Recoverer, purger Purger,
	compactors []Compactor, log *slog.Logger) (*Maintenance, error) {
	log = log.With(slog.String("component", "maintenance"))
	cl := cronLogger{log: log}
	m := &Maintenance{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		recoverer:  recoverer,
		compactors: compactors,
		purger:     purger,
		log:        log,
	}
	if _, err := m.cron.AddFunc(recoverySpec, func() { m.RecoverIntents(context.Background()) }); err != nil {
		return nil, err
	}
	if _, err := m.cron.AddFunc(compactionSpec, func() { m.Compact(context.Background()) }); err != nil {
		return nil, err
	}
	return m, nil
}

// Start запускает планировщик.
func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

// RecoverIntents один проход восстановления.
func (m *Maintenance) RecoverIntents(ctx context.Context) {
	n, err := m.recoverer.Recover(ctx)
	if err != nil {
		m.log.Error("intent recovery failed", sl.Err(err))
	}
	if n > 0 {
		m.log.Info("intents recovered", slog.Int("count", n))
	}
}

// Compact чистит индексы всех сущностей и удаляет истёкшие ключи.
func (m *Maintenance) Compact(ctx context.Context) {
	for _, c := range m.compactors {
		pruned, err := c.Compact(ctx)
		if err != nil {
			m.log.Error("index compaction failed", slog.String("entity", c.Entity()), sl.Err(err))
			continue
		}
		if pruned > 0 {
			m.log.Info("index compacted", slog.String("entity", c.Entity()), slog.Int("pruned", pruned))
		}
	}
	if m.purger == nil {
		return
	}
	purged, err := m.purger.PurgeExpired(ctx)
	if err != nil {
		m.log.Error("purge of expired keys failed", sl.Err(err))
		return
	}
	if purged > 0 {
		m.log.Info("expired keys purged", slog.Int64("count", purged))
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{sl.Err(err)}, keysAndValues...)...)
}
