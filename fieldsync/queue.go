// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldops/fieldsync/fieldstore"
)

// Action types dispatched by the orchestrator. Each maps to one remote
// operation; payloads are JSON-encoded at enqueue time.
const (
	ActionUpdateStatus    = "update-status"
	ActionCompleteOrder   = "complete-order"
	ActionExecuteDelivery = "execute-delivery"
	ActionUploadPhoto     = "upload-photo"
	ActionLocationUpdate  = "location-update"
)

// MaxRetries is the retry budget for a queued action. The attempt after the
// budget is exhausted (the 4th failure) drops the action permanently rather
// than letting an unreachable server grow the queue without bound.
const MaxRetries = 3

// StatusUpdatePayload is the payload for update-status and complete-order
// actions. Setting an absolute status keeps replays idempotent.
type StatusUpdatePayload struct {
	OrderID string                 `json:"order_id"`
	Status  fieldstore.OrderStatus `json:"status"`
}

// ExecutePayload is the payload for a composite delivery-execution action.
type ExecutePayload struct {
	OrderID  string               `json:"order_id"`
	Cabinets []fieldstore.Cabinet `json:"cabinets"`
}

// PhotoUploadPayload references a locally persisted photo by id; the binary
// stays in the store until the transfer succeeds.
type PhotoUploadPayload struct {
	PhotoID string `json:"photo_id"`
}

// LocationPayload is an emitted driver location sample.
type LocationPayload struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Queue is the durable, ordered log of pending mutations. It is the
// durability boundary: a mutation performed offline must land here before it
// is considered in flight.
type Queue struct {
	store fieldstore.Backend
	now   func() time.Time
}

// NewQueue builds a queue over the given store.
func NewQueue(store fieldstore.Backend) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Enqueue appends an action with the current timestamp and a zero retry
// count, returning the persisted entry with its assigned sequence id.
func (q *Queue) Enqueue(ctx context.Context, typ string, payload any) (*fieldstore.OfflineAction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action payload: %w", err)
	}
	action := &fieldstore.OfflineAction{
		Type:      typ,
		Payload:   raw,
		Timestamp: q.now(),
	}
	if err := q.store.AppendAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to enqueue action: %w", err)
	}
	return action, nil
}

// DequeueAll returns every pending action ordered by timestamp ascending,
// preserving the causal order of driver intent.
func (q *Queue) DequeueAll(ctx context.Context) ([]*fieldstore.OfflineAction, error) {
	return q.store.ActionsByTimestamp(ctx)
}

// Remove deletes a queue entry after it was applied remotely or dropped.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	return q.store.DeleteAction(ctx, id)
}

// IncrementRetry bumps and persists the action's retry counter, reporting
// whether the retry budget is now exhausted.
func (q *Queue) IncrementRetry(ctx context.Context, action *fieldstore.OfflineAction) (exhausted bool, err error) {
	action.RetryCount++
	if action.RetryCount > MaxRetries {
		return true, nil
	}
	if err := q.store.UpdateActionRetry(ctx, action); err != nil {
		return false, fmt.Errorf("failed to persist retry count: %w", err)
	}
	return false, nil
}
