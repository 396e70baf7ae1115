// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// FlatStore is the degraded, best-effort fallback used when the SQLite
// database cannot be opened (quota exceeded, storage disabled). It keeps
// everything in memory with full scans instead of indexes; callers detect
// the degradation through Capabilities, never through changed behavior.
type FlatStore struct {
	mu         sync.Mutex
	orders     map[string]*ServiceOrder
	routes     map[string]*Route
	devices    map[string]*Device
	actions    []*OfflineAction
	photos     map[string]*Photo
	nextAction int64
	lastSync   time.Time
}

var _ Backend = (*FlatStore)(nil)

// NewFlatStore returns an empty fallback store.
func NewFlatStore() *FlatStore {
	return &FlatStore{
		orders:     make(map[string]*ServiceOrder),
		routes:     make(map[string]*Route),
		devices:    make(map[string]*Device),
		photos:     make(map[string]*Photo),
		nextAction: 1,
	}
}

// Capabilities reports the degraded mode: nothing survives a restart and
// every query is a scan.
func (f *FlatStore) Capabilities() Capabilities {
	return Capabilities{Durable: false, Indexed: false}
}

// Close is a no-op for the in-memory store.
func (f *FlatStore) Close() error { return nil }

func (f *FlatStore) PutOrder(_ context.Context, order *ServiceOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.ID] = order.Clone()
	return nil
}

func (f *FlatStore) ApplyServerOrder(_ context.Context, order *ServiceOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	applied := order.Clone()
	applied.SyncStatus = SyncSynced
	f.orders[applied.ID] = applied
	return nil
}

func (f *FlatStore) MarkOrderSynced(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.SyncStatus = SyncSynced
	return nil
}

func (f *FlatStore) GetOrder(_ context.Context, id string) (*ServiceOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return order.Clone(), nil
}

func (f *FlatStore) ordersWhere(match func(*ServiceOrder) bool) []*ServiceOrder {
	var out []*ServiceOrder
	for _, order := range f.orders {
		if match(order) {
			out = append(out, order.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FlatStore) Orders(_ context.Context) ([]*ServiceOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ordersWhere(func(*ServiceOrder) bool { return true }), nil
}

func (f *FlatStore) OrdersByStatus(_ context.Context, status OrderStatus) ([]*ServiceOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ordersWhere(func(o *ServiceOrder) bool { return o.Status == status }), nil
}

func (f *FlatStore) OrdersBySyncStatus(_ context.Context, status SyncStatus) ([]*ServiceOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ordersWhere(func(o *ServiceOrder) bool { return o.SyncStatus == status }), nil
}

func (f *FlatStore) PutRoute(_ context.Context, route *Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route.ID] = route.Clone()
	return nil
}

func (f *FlatStore) GetRoute(_ context.Context, id string) (*Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	route, ok := f.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return route.Clone(), nil
}

func (f *FlatStore) Routes(_ context.Context) ([]*Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Route, 0, len(f.routes))
	for _, route := range f.routes {
		out = append(out, route.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *FlatStore) PutDevice(_ context.Context, device *Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *device
	f.devices[device.AssetTag] = &cp
	return nil
}

func (f *FlatStore) GetDevice(_ context.Context, assetTag string) (*Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	device, ok := f.devices[assetTag]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *device
	return &cp, nil
}

func (f *FlatStore) Devices(_ context.Context) ([]*Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Device, 0, len(f.devices))
	for _, device := range f.devices {
		cp := *device
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetTag < out[j].AssetTag })
	return out, nil
}

func (f *FlatStore) AppendAction(_ context.Context, action *OfflineAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	action.ID = f.nextAction
	f.nextAction++
	cp := *action
	f.actions = append(f.actions, &cp)
	return nil
}

func (f *FlatStore) ActionsByTimestamp(_ context.Context) ([]*OfflineAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*OfflineAction, 0, len(f.actions))
	for _, action := range f.actions {
		cp := *action
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (f *FlatStore) DeleteAction(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, action := range f.actions {
		if action.ID == id {
			f.actions = append(f.actions[:i], f.actions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *FlatStore) UpdateActionRetry(_ context.Context, action *OfflineAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stored := range f.actions {
		if stored.ID == action.ID {
			stored.RetryCount = action.RetryCount
			return nil
		}
	}
	return ErrNotFound
}

func (f *FlatStore) PutPhoto(_ context.Context, photo *Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos[photo.ID] = photo.Clone()
	return nil
}

func (f *FlatStore) GetPhoto(_ context.Context, id string) (*Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	photo, ok := f.photos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return photo.Clone(), nil
}

func (f *FlatStore) photosWhere(match func(*Photo) bool) []*Photo {
	var out []*Photo
	for _, photo := range f.photos {
		if match(photo) {
			out = append(out, photo.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *FlatStore) PhotosByOrder(_ context.Context, orderID string) ([]*Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.photosWhere(func(p *Photo) bool { return p.OrderID == orderID }), nil
}

func (f *FlatStore) PhotosByUploadState(_ context.Context, uploaded bool) ([]*Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.photosWhere(func(p *Photo) bool { return p.Uploaded == uploaded }), nil
}

func (f *FlatStore) MarkPhotoUploaded(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	photo, ok := f.photos[id]
	if !ok {
		return ErrNotFound
	}
	photo.Uploaded = true
	return nil
}

func (f *FlatStore) DeletePhoto(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.photos, id)
	return nil
}

func (f *FlatStore) LastSyncAt(_ context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSync, nil
}

func (f *FlatStore) SetLastSyncAt(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSync = at
	return nil
}
