package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/repositories"
)

var (
	ErrOffline        = errors.New("remote replica unreachable")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrSyncCanceled   = errors.New("sync canceled")
)

type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
)

const tracerName = "github.com/prudhvinik1/episync/internal/services"

type SyncResult struct {
	Children    MergeStats `json:"children"`
	Records     MergeStats `json:"records"`
	CompletedAt time.Time  `json:"completed_at"`
}

// SyncService reconciles the local replica with the remote one. At most one
// sync runs per local replica, across processes when the replica's backend
// holds leases; a second caller gets ErrSyncInProgress rather than waiting.
type SyncService struct {
	local        *repositories.Store
	remote       *repositories.Store
	connectivity Connectivity
	options

	running sync.Mutex
	syncing atomic.Bool

	observersMu sync.RWMutex
	observers   []func(SyncResult)
}

func NewSyncService(local, remote *repositories.Store, connectivity Connectivity, opts ...Option) *SyncService {
	return &SyncService{
		local:        local,
		remote:       remote,
		connectivity: connectivity,
		options:      newOptions(opts),
	}
}

func (s *SyncService) State() SyncState {
	if s.syncing.Load() {
		return SyncSyncing
	}
	return SyncIdle
}

// OnSync registers fn to be called after every successful sync.
func (s *SyncService) OnSync(fn func(SyncResult)) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *SyncService) LastSync(ctx context.Context) (models.SyncState, error) {
	return s.local.LastSync(ctx)
}

// Sync merges children and records between the replicas, remote as base and
// last writer wins, and writes the result to both. Collections are handled
// one after the other; a failure leaves the collections already written in
// place and a rerun converges.
//
// Cancelling ctx stops the sync between collections only. A collection whose
// writes have started is written to both replicas before Sync returns
// ErrSyncCanceled.
func (s *SyncService) Sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()

	if !s.running.TryLock() {
		s.metrics.ObserveSync("busy", start)
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	release, err := s.local.AcquireLease(ctx, repositories.SyncLease, repositories.SyncLeaseTTL)
	if errors.Is(err, repositories.ErrLeaseHeld) {
		s.metrics.ObserveSync("busy", start)
		return nil, ErrSyncInProgress
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.ObserveSync("canceled", start)
			return nil, canceled(ctxErr)
		}
		s.metrics.ObserveSync("error", start)
		s.logger.Error("sync failed", "error", err)
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release sync lease", "error", err)
		}
	}()

	if !s.connectivity.Online(ctx) {
		s.metrics.ObserveSync("offline", start)
		return nil, ErrOffline
	}

	s.syncing.Store(true)
	defer s.syncing.Store(false)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "SyncService.Sync", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	var result *SyncResult
	err = s.local.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.run(ctx)
		return err
	})
	if errors.Is(err, ErrSyncCanceled) {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveSync("canceled", start)
		s.logger.Warn("sync canceled", "error", err)
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveSync("error", start)
		s.logger.Error("sync failed", "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("sync.children", result.Children.Total),
		attribute.Int("sync.records", result.Records.Total),
	)
	span.SetStatus(codes.Ok, "")
	s.metrics.ObserveSync("success", start)
	s.logger.Info("sync completed",
		"children", result.Children.Total,
		"records", result.Records.Total,
		"duration", time.Since(start),
	)

	s.notify(*result)
	return result, nil
}

func (s *SyncService) run(ctx context.Context) (*SyncResult, error) {
	var (
		localChildren, remoteChildren []models.Child
		localRecords, remoteRecords   []models.VaccinationRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		localChildren, err = s.local.Children.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		remoteChildren, err = s.remote.Children.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		localRecords, err = s.local.Records.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		remoteRecords, err = s.remote.Records.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceled(ctxErr)
		}
		return nil, fmt.Errorf("failed to read replicas: %w", err)
	}

	// Writes run to completion once started so that no collection is left
	// written to one replica only.
	writeCtx := context.WithoutCancel(ctx)

	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	childStats, err := syncCollection(writeCtx, s.local.Children, s.remote.Children, localChildren, remoteChildren)
	if err != nil {
		return nil, err
	}
	s.recordMerged(repositories.ChildrenCollection, childStats)

	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	recordStats, err := syncCollection(writeCtx, s.local.Records, s.remote.Records, localRecords, remoteRecords)
	if err != nil {
		return nil, err
	}
	s.recordMerged(repositories.RecordsCollection, recordStats)

	if err := ctx.Err(); err != nil {
		return nil, canceled(err)
	}
	completedAt := s.clock()
	if err := s.local.SetLastSync(writeCtx, completedAt); err != nil {
		return nil, fmt.Errorf("failed to record last sync: %w", err)
	}

	return &SyncResult{
		Children:    childStats,
		Records:     recordStats,
		CompletedAt: completedAt,
	}, nil
}

func canceled(cause error) error {
	return fmt.Errorf("%w: %w", ErrSyncCanceled, cause)
}

func syncCollection[T models.Entity[T]](ctx context.Context, local, remote *repositories.Collection[T], localItems, remoteItems []T) (MergeStats, error) {
	merged, stats := MergeLatest(remoteItems, localItems)

	if err := remote.ReplaceAll(ctx, merged); err != nil {
		return stats, fmt.Errorf("failed to write remote %s: %w", remote.Name(), err)
	}
	if err := local.ReplaceAll(ctx, merged); err != nil {
		return stats, fmt.Errorf("failed to write local %s: %w", local.Name(), err)
	}

	trace.SpanFromContext(ctx).AddEvent("collection merged", trace.WithAttributes(
		attribute.String("collection", local.Name()),
		attribute.Int("total", stats.Total),
		attribute.Int("local_added", stats.LocalAdded),
		attribute.Int("local_wins", stats.LocalWins),
	))
	return stats, nil
}

func (s *SyncService) recordMerged(collection string, stats MergeStats) {
	s.metrics.AddMerged(collection, "local", stats.LocalAdded+stats.LocalWins)
	s.metrics.AddMerged(collection, "remote", stats.RemoteKept+stats.RemoteOnly())
}

func (s *SyncService) notify(result SyncResult) {
	s.observersMu.RLock()
	observers := make([]func(SyncResult), len(s.observers))
	copy(observers, s.observers)
	s.observersMu.RUnlock()

	for _, fn := range observers {
		fn(result)
	}
}
