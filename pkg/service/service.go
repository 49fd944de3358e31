// Package service is the composition root of Memtrail: one facade over the
// social graph, the record store, hybrid recall, the session cache, and the
// context trimmer. Handlers and embedding applications talk to this package
// only.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/memtrail/memtrail/config"
	"github.com/memtrail/memtrail/pkg/conversation"
	"github.com/memtrail/memtrail/pkg/logger"
	"github.com/memtrail/memtrail/pkg/memory"
	"github.com/memtrail/memtrail/pkg/metrics"
	"github.com/memtrail/memtrail/pkg/recall"
	"github.com/memtrail/memtrail/pkg/sessioncache"
	"github.com/memtrail/memtrail/pkg/social"
)

// Service bundles the memory subsystem behind one API.
type Service struct {
	graph   *social.Graph
	records *memory.Store
	recall  *recall.Client
	cache   *sessioncache.Cache
	metrics *metrics.Manager
	log     logger.Logger
	tracer  trace.Tracer

	mu            sync.RWMutex
	trimmer       *conversation.Trimmer
	defaultBudget int
}

// Options carries the service's collaborators.
type Options struct {
	Graph   *social.Graph
	Records *memory.Store
	Recall  *recall.Client
	Cache   *sessioncache.Cache
	Metrics *metrics.Manager
	Logger  logger.Logger

	ContextMetric string
	ContextBudget int
}

// overflowLogger routes trimmer warnings to the service log and the
// overflow counter.
type overflowLogger struct {
	log     logger.Logger
	metrics *metrics.Manager
}

func (l overflowLogger) Warn(msg string, args ...any) {
	l.metrics.TrimOverflow()
	l.log.Warn(msg, args...)
}

// New creates the service facade.
func New(opts Options) *Service {
	return &Service{
		graph:   opts.Graph,
		records: opts.Records,
		recall:  opts.Recall,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		log:     opts.Logger,
		tracer:  otel.Tracer("memtrail/service"),
		trimmer: conversation.NewTrimmer(opts.ContextMetric,
			overflowLogger{log: opts.Logger, metrics: opts.Metrics}),
		defaultBudget: opts.ContextBudget,
	}
}

// Recall returns up to topK reranked memory records visible to user. Recall
// never fails a conversation: upstream errors and timeouts degrade to an
// empty result and are reported through logs and metrics.
func (s *Service) Recall(ctx context.Context, user, query string, topK int) []recall.Scored {
	ctx, span := s.tracer.Start(ctx, "service.Recall",
		trace.WithAttributes(attribute.String("user", user)))
	defer span.End()

	start := time.Now()
	results, err := s.recall.Recall(ctx, user, query, topK)
	if err != nil {
		s.metrics.ObserveRecall("degraded", time.Since(start), 0)
		span.RecordError(err)
		return nil
	}
	s.metrics.ObserveRecall("ok", time.Since(start), len(results))
	span.SetAttributes(attribute.Int("results", len(results)))
	return results
}

// Remember stores a new private memory record for owner. Publication to the
// owner's readers happens asynchronously through the sanitizer.
func (s *Service) Remember(ctx context.Context, owner, text string) (*memory.Record, error) {
	ctx, span := s.tracer.Start(ctx, "service.Remember",
		trace.WithAttributes(attribute.String("owner", owner)))
	defer span.End()

	rec, err := s.records.WritePrivate(ctx, owner, text)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.RecordWrite("private")
	return rec, nil
}

// Share explicitly runs sanitize-and-publish for one of owner's records.
// The private record is never modified; on success a new shared record with
// provenance is returned. Without readers there is nothing to do and both
// return values are nil.
func (s *Service) Share(ctx context.Context, owner, recordID string) (*memory.Record, error) {
	ctx, span := s.tracer.Start(ctx, "service.Share",
		trace.WithAttributes(
			attribute.String("owner", owner),
			attribute.String("record_id", recordID),
		))
	defer span.End()

	rec, err := s.records.Get(ctx, owner, recordID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	start := time.Now()
	pub, err := s.records.Publish(ctx, rec)
	s.metrics.ObserveSanitize(time.Since(start))
	switch {
	case errors.Is(err, memory.ErrSanitizer):
		s.metrics.PublishOutcome("failed")
		span.RecordError(err)
		return nil, err
	case err != nil:
		span.RecordError(err)
		return nil, err
	case pub == nil:
		s.metrics.PublishOutcome("skipped")
		return nil, nil
	default:
		s.metrics.PublishOutcome("published")
		s.metrics.RecordWrite("shared")
		return pub, nil
	}
}

// GrantAccess lets grantee amplify memories from grantor.
func (s *Service) GrantAccess(ctx context.Context, grantor, grantee string) error {
	ctx, span := s.tracer.Start(ctx, "service.GrantAccess")
	defer span.End()

	if err := s.graph.Grant(ctx, grantor, grantee); err != nil {
		span.RecordError(err)
		return fmt.Errorf("grant access: %w", err)
	}
	s.log.InfoContext(ctx, "access granted", "grantor", grantor, "grantee", grantee)
	return nil
}

// RevokeAccess removes grantee's visibility into grantor's shared records.
// Takes effect on the next recall query.
func (s *Service) RevokeAccess(ctx context.Context, grantor, grantee string) error {
	ctx, span := s.tracer.Start(ctx, "service.RevokeAccess")
	defer span.End()

	if err := s.graph.Revoke(ctx, grantor, grantee); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke access: %w", err)
	}
	s.log.InfoContext(ctx, "access revoked", "grantor", grantor, "grantee", grantee)
	return nil
}

// RecordTurn appends turns to a session's conversation log through the
// write-behind cache. The turns are readable immediately and flushed to the
// durable store in the background.
func (s *Service) RecordTurn(ctx context.Context, sessionID string, turns ...conversation.Turn) error {
	ctx, span := s.tracer.Start(ctx, "service.RecordTurn",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	if err := s.cache.Append(ctx, sessionID, turns...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// GetContext returns the session's conversation trimmed to the budget.
// budget <= 0 uses the configured default.
func (s *Service) GetContext(ctx context.Context, sessionID string, budget int) ([]conversation.Turn, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetContext",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	s.mu.RLock()
	trimmer := s.trimmer
	if budget <= 0 {
		budget = s.defaultBudget
	}
	s.mu.RUnlock()

	turns, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get context: %w", err)
	}

	trimmed, err := trimmer.Trim(turns, budget)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get context: %w", err)
	}
	span.SetAttributes(
		attribute.Int("turns_total", len(turns)),
		attribute.Int("turns_kept", len(trimmed)),
	)
	return trimmed, nil
}

// ApplyConfig re-applies the runtime-tunable knobs. Wired to the config
// watcher so recall weights and context budgets follow the config file
// without a restart.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.recall.ApplyTuning(recall.Tuning{
		Alpha:        cfg.Recall.Alpha,
		HalfLife:     cfg.Recall.HalfLife,
		DefaultTopK:  cfg.Recall.DefaultTopK,
		QueryTimeout: cfg.Recall.QueryTimeout,
	})

	s.mu.Lock()
	s.trimmer = conversation.NewTrimmer(cfg.Context.Metric,
		overflowLogger{log: s.log, metrics: s.metrics})
	s.defaultBudget = cfg.Context.DefaultBudget
	s.mu.Unlock()

	s.log.Info("runtime tuning applied",
		"alpha", cfg.Recall.Alpha,
		"half_life", cfg.Recall.HalfLife,
		"context_budget", cfg.Context.DefaultBudget,
	)
}

// Shutdown flushes the session cache and waits for in-flight background
// publications.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.cache.Close(ctx)
	s.records.Wait()
	return err
}
