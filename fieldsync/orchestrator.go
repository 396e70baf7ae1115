// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

// Package fieldsync implements the offline-first synchronization engine for
// the field-service app: a durable action queue over the local store, a
// sync orchestrator that drains the queue, pushes dirty records, uploads
// photos and pulls incremental server updates, a server-wins conflict
// resolver, and a connectivity monitor that drives sync triggering.
package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fieldops/fieldsync/fieldstore"
)

// ErrSyncInProgress is returned when a cycle is requested while another one
// is still running; the request is a no-op by design.
var ErrSyncInProgress = errors.New("fieldsync: sync cycle already in progress")

// Status is the aggregate sync indicator exposed to the UI layer.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// EventKind discriminates orchestrator events.
type EventKind string

const (
	EventSyncStarted   EventKind = "sync-started"
	EventSyncSucceeded EventKind = "sync-succeeded"
	EventSyncFailed    EventKind = "sync-failed"
	// EventActionDropped is the non-fatal warning emitted when an action
	// exhausts its retry budget and is removed from the queue.
	EventActionDropped EventKind = "action-dropped"
)

// Event is a signal emitted for the UI layer to consume.
type Event struct {
	Kind       EventKind
	LastSyncAt time.Time                 // set on sync-succeeded
	Err        error                     // set on sync-failed
	Action     *fieldstore.OfflineAction // set on action-dropped
}

// Config holds orchestrator tuning.
type Config struct {
	// SyncInterval is the periodic trigger while online.
	SyncInterval time.Duration
}

// DefaultConfig returns the stock 5-minute periodic sync.
func DefaultConfig() *Config {
	return &Config{SyncInterval: 5 * time.Minute}
}

// Orchestrator coordinates sync cycles. All collaborators are injected so
// tests can substitute doubles; the orchestrator holds no entity state
// across cycles beyond what the store persists.
type Orchestrator struct {
	store    fieldstore.Backend
	queue    *Queue
	remote   Remote
	resolver Resolver
	uploader *Uploader
	monitor  *Monitor
	config   *Config
	logger   *slog.Logger

	inProgress atomic.Bool
	lastErr    atomic.Bool // last cycle ended in error
	syncNow    chan struct{}
	events     chan Event
	now        func() time.Time
}

// NewOrchestrator wires the engine together. resolver defaults to
// ServerWins and config to DefaultConfig when nil. A nil monitor is
// allowed: the engine then assumes it is always online and syncs are
// driven by the timer and SyncNow only.
func NewOrchestrator(store fieldstore.Backend, queue *Queue, remote Remote, resolver Resolver,
	uploader *Uploader, monitor *Monitor, config *Config, logger *slog.Logger) *Orchestrator {
	if resolver == nil {
		resolver = ServerWins{}
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		queue:    queue,
		remote:   remote,
		resolver: resolver,
		uploader: uploader,
		monitor:  monitor,
		config:   config,
		logger:   logger,
		syncNow:  make(chan struct{}, 1),
		events:   make(chan Event, 32),
		now:      time.Now,
	}
}

// Events delivers sync signals. The channel is buffered and lossy for slow
// consumers; the aggregate state is always available via Status.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Status reports the aggregate sync indicator.
func (o *Orchestrator) Status() Status {
	if o.inProgress.Load() {
		return StatusSyncing
	}
	if o.monitor != nil && !o.monitor.Online() {
		return StatusOffline
	}
	if o.lastErr.Load() {
		return StatusError
	}
	return StatusIdle
}

// SyncNow requests an immediate cycle from the run loop. Requests arriving
// while a cycle is active coalesce into at most one follow-up cycle.
func (o *Orchestrator) SyncNow() {
	select {
	case o.syncNow <- struct{}{}:
	default:
	}
}

// Run is the orchestrator event loop: it reacts to offline→online
// transitions, the periodic timer and explicit SyncNow requests until the
// context is cancelled. Cycles run inline on this single goroutine, so no
// two cycles ever overlap from the loop itself.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.config.SyncInterval)
	defer ticker.Stop()

	// Without a monitor there are no connectivity edges and the ticker
	// assumes online; receiving from a nil channel blocks forever.
	var transitions <-chan Transition
	online := func() bool { return true }
	if o.monitor != nil {
		transitions = o.monitor.Transitions()
		online = o.monitor.Online
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr := <-transitions:
			if tr.Online {
				o.runCycle(ctx)
			}
		case <-ticker.C:
			if online() {
				o.runCycle(ctx)
			}
		case <-o.syncNow:
			o.runCycle(ctx)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	if err := o.SyncCycle(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		o.logger.Warn("sync cycle failed", "error", err)
	}
}

// SyncCycle performs one complete sync cycle: drain the action queue, push
// dirty orders, upload pending photos, pull incremental updates, sweep
// photo retention, then advance the last-sync watermark. A cycle requested
// while another is active returns ErrSyncInProgress. On any step-level
// failure the cycle aborts, the watermark stays put and the next trigger
// re-attempts from the same baseline.
func (o *Orchestrator) SyncCycle(ctx context.Context) error {
	if !o.inProgress.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer o.inProgress.Store(false)

	startedAt := o.now()
	o.emit(Event{Kind: EventSyncStarted})
	o.logger.Info("sync cycle started")

	err := o.cycle(ctx, startedAt)
	if err != nil {
		o.lastErr.Store(true)
		o.emit(Event{Kind: EventSyncFailed, Err: err})
		return err
	}

	o.lastErr.Store(false)
	o.emit(Event{Kind: EventSyncSucceeded, LastSyncAt: startedAt})
	o.logger.Info("sync cycle succeeded", "last_sync_at", startedAt)
	return nil
}

func (o *Orchestrator) cycle(ctx context.Context, startedAt time.Time) error {
	// Queued actions carry explicit driver intent and must reach the server
	// before any bulk pull can overwrite the records they touch.
	if err := o.drainQueue(ctx); err != nil {
		return fmt.Errorf("queue drain failed: %w", err)
	}
	if err := o.pushDirtyOrders(ctx); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	if err := o.uploader.UploadPending(ctx); err != nil {
		return fmt.Errorf("photo upload failed: %w", err)
	}
	if err := o.pullUpdates(ctx); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	if _, err := o.uploader.Sweep(ctx, startedAt); err != nil {
		return fmt.Errorf("photo sweep failed: %w", err)
	}
	// The watermark is the cycle start, not its end: anything modified on
	// the server while this cycle ran is picked up by the next pull.
	if err := o.store.SetLastSyncAt(ctx, startedAt); err != nil {
		return fmt.Errorf("failed to persist last sync timestamp: %w", err)
	}
	return nil
}

// drainQueue dispatches every queued action, oldest first. A failing action
// never aborts the loop: transient failures consume retry budget, permanent
// failures are dropped immediately, and only auth failures stop the drain
// since re-authentication has to happen before anything can succeed.
func (o *Orchestrator) drainQueue(ctx context.Context) error {
	actions, err := o.queue.DequeueAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read action queue: %w", err)
	}

	for _, action := range actions {
		err := o.dispatch(ctx, action)
		if err == nil {
			if err := o.queue.Remove(ctx, action.ID); err != nil {
				return fmt.Errorf("failed to remove applied action %d: %w", action.ID, err)
			}
			continue
		}

		switch ClassOf(err) {
		case ClassAuth:
			// Leave everything queued; the auth layer re-drives after
			// re-authentication.
			return err
		case ClassPermanent:
			o.logger.Error("dropping action with permanent failure",
				"action", action.ID, "type", action.Type, "error", err)
			if err := o.queue.Remove(ctx, action.ID); err != nil {
				return fmt.Errorf("failed to remove invalid action %d: %w", action.ID, err)
			}
		case ClassConflict:
			// Conflicts are not failures: the record's state is reconciled by
			// the push/pull phases, so the intent no longer needs replaying.
			if err := o.queue.Remove(ctx, action.ID); err != nil {
				return fmt.Errorf("failed to remove conflicted action %d: %w", action.ID, err)
			}
		default:
			exhausted, qerr := o.queue.IncrementRetry(ctx, action)
			if qerr != nil {
				return qerr
			}
			if exhausted {
				o.logger.Error("dropping action after exhausting retries",
					"action", action.ID, "type", action.Type, "retries", action.RetryCount-1, "error", err)
				if err := o.queue.Remove(ctx, action.ID); err != nil {
					return fmt.Errorf("failed to remove exhausted action %d: %w", action.ID, err)
				}
				o.emit(Event{Kind: EventActionDropped, Action: action})
			} else {
				o.logger.Warn("action dispatch failed, will retry next cycle",
					"action", action.ID, "type", action.Type, "retries", action.RetryCount, "error", err)
			}
		}
	}
	return nil
}

// dispatch maps an action to its remote operation. All operations are
// idempotent by construction (absolute status writes, photo upload keyed by
// photo id), so a crash between remote success and queue removal only costs
// a harmless replay.
func (o *Orchestrator) dispatch(ctx context.Context, action *fieldstore.OfflineAction) error {
	switch action.Type {
	case ActionUpdateStatus:
		var payload StatusUpdatePayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return &RemoteError{Class: ClassPermanent, Msg: fmt.Sprintf("malformed payload: %v", err)}
		}
		return o.remote.UpdateOrder(ctx, payload)

	case ActionCompleteOrder:
		var payload StatusUpdatePayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return &RemoteError{Class: ClassPermanent, Msg: fmt.Sprintf("malformed payload: %v", err)}
		}
		payload.Status = fieldstore.OrderCompleted
		return o.remote.UpdateOrder(ctx, payload)

	case ActionExecuteDelivery:
		var payload ExecutePayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return &RemoteError{Class: ClassPermanent, Msg: fmt.Sprintf("malformed payload: %v", err)}
		}
		return o.remote.ExecuteDelivery(ctx, payload)

	case ActionUploadPhoto:
		var payload PhotoUploadPayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return &RemoteError{Class: ClassPermanent, Msg: fmt.Sprintf("malformed payload: %v", err)}
		}
		photo, err := o.store.GetPhoto(ctx, payload.PhotoID)
		if errors.Is(err, fieldstore.ErrNotFound) {
			// Photo already purged or never persisted; nothing to replay.
			return nil
		}
		if err != nil {
			return err
		}
		return o.uploader.Upload(ctx, photo)

	case ActionLocationUpdate:
		var payload LocationPayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return &RemoteError{Class: ClassPermanent, Msg: fmt.Sprintf("malformed payload: %v", err)}
		}
		return o.remote.ReportLocation(ctx, payload)

	default:
		return &RemoteError{Class: ClassPermanent, Msg: fmt.Sprintf("unknown action type %q", action.Type)}
	}
}

// pushDirtyOrders sends every locally-dirty order to the sync endpoint. A
// conflicting response goes through the resolver; per-order transient
// failures are contained and the order simply stays dirty for next cycle.
func (o *Orchestrator) pushDirtyOrders(ctx context.Context) error {
	dirty, err := o.store.OrdersBySyncStatus(ctx, fieldstore.SyncPending)
	if err != nil {
		return fmt.Errorf("failed to query dirty orders: %w", err)
	}

	for _, order := range dirty {
		result, err := o.remote.SyncOrder(ctx, order)
		if err != nil {
			if ClassOf(err) == ClassAuth {
				return err
			}
			o.logger.Warn("order push failed, will retry next cycle", "order", order.ID, "error", err)
			continue
		}

		if result.Conflict {
			if result.ServerVersion == nil {
				// Malformed answer: the server rejected our version but sent no
				// authoritative copy to resolve against.
				o.logger.Warn("conflict response without server version, order stays dirty", "order", order.ID)
				continue
			}
			resolved := o.resolver.Resolve(order, result.ServerVersion)
			if err := o.store.ApplyServerOrder(ctx, resolved); err != nil {
				return fmt.Errorf("failed to store resolved order %s: %w", order.ID, err)
			}
			o.logger.Info("conflict resolved with server version", "order", order.ID)
			continue
		}

		if err := o.store.MarkOrderSynced(ctx, order.ID); err != nil {
			return fmt.Errorf("failed to mark order %s synced: %w", order.ID, err)
		}
	}
	return nil
}

// pullUpdates applies server-side changes since the last successful sync.
// Server data overwrites local records except those still dirty: a pending
// record's intent has not reached the server yet, so clobbering it here
// would lose a mutation.
func (o *Orchestrator) pullUpdates(ctx context.Context) error {
	since, err := o.store.LastSyncAt(ctx)
	if err != nil {
		return err
	}

	orders, err := o.remote.OrdersSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to pull orders: %w", err)
	}
	for _, server := range orders {
		local, err := o.store.GetOrder(ctx, server.ID)
		if err != nil && !errors.Is(err, fieldstore.ErrNotFound) {
			return err
		}
		if local != nil && local.SyncStatus == fieldstore.SyncPending {
			o.logger.Debug("skipping pulled order with local pending changes", "order", server.ID)
			continue
		}
		if err := o.store.ApplyServerOrder(ctx, server); err != nil {
			return fmt.Errorf("failed to apply pulled order %s: %w", server.ID, err)
		}
	}

	routes, err := o.remote.RoutesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to pull routes: %w", err)
	}
	for _, route := range routes {
		if err := o.store.PutRoute(ctx, route); err != nil {
			return fmt.Errorf("failed to apply pulled route %s: %w", route.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.logger.Debug("dropping event, channel full", "kind", ev.Kind)
	}
}
