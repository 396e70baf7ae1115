// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

// Package fieldstore provides the durable on-device store for the field
// service sync engine: service orders, routes, vending devices, the offline
// action queue, and captured photos. Records are explicit typed structs;
// the store owns every persisted instance.
package fieldstore

import (
	"encoding/json"
	"time"
)

// OrderStatus is the lifecycle state of a ServiceOrder.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
)

// SyncStatus marks whether the latest local change of a record has been
// confirmed accepted by the remote authority.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncPending SyncStatus = "pending"
)

// ProductLine is a single product/quantity entry inside a cabinet.
type ProductLine struct {
	ProductCode string `json:"product_code"`
	Quantity    int    `json:"quantity"`
}

// Cabinet is a sub-record of a ServiceOrder describing one vending cabinet
// to be serviced during the visit.
type Cabinet struct {
	ID       string        `json:"id"`
	Lines    []ProductLine `json:"lines"`
	Executed bool          `json:"executed"`
}

// ServiceOrder is a delivery/service task assigned to a driver. Orders are
// created by the server (or locally when a driver starts work) and are never
// deleted locally, only superseded by newer server versions.
type ServiceOrder struct {
	ID           string      `json:"id"`
	Status       OrderStatus `json:"status"`
	Cabinets     []Cabinet   `json:"cabinets"`
	SyncStatus   SyncStatus  `json:"sync_status"`
	LastModified time.Time   `json:"last_modified"`
}

// Clone returns a deep copy of the order, so callers can hand records across
// component boundaries without sharing the cabinet slices.
func (o *ServiceOrder) Clone() *ServiceOrder {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Cabinets = make([]Cabinet, len(o.Cabinets))
	for i, c := range o.Cabinets {
		cc := c
		cc.Lines = append([]ProductLine(nil), c.Lines...)
		cp.Cabinets[i] = cc
	}
	return &cp
}

// Route assigns a set of ServiceOrders to a driver for a period. Read-mostly;
// refreshed from the server during incremental pulls.
type Route struct {
	ID           string    `json:"id"`
	Number       string    `json:"number"`
	OrderIDs     []string  `json:"order_ids"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	LastModified time.Time `json:"last_modified"`
}

// Clone returns a deep copy of the route.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	cp := *r
	cp.OrderIDs = append([]string(nil), r.OrderIDs...)
	return &cp
}

// Device is reference data for a vending asset, keyed by its unique asset
// tag so repeated pulls never create duplicate entries.
type Device struct {
	AssetTag string    `json:"asset_tag"`
	Model    string    `json:"model"`
	Location string    `json:"location"`
	LastSeen time.Time `json:"last_seen"`
}

// OfflineAction is a durable queue entry recording an intended remote
// mutation. An action leaves the queue only after it has been applied
// remotely, or after it has exhausted its retry budget.
type OfflineAction struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"`
}

// Photo is a captured binary artifact owned by a ServiceOrder. A photo with
// Uploaded=false is never purged, regardless of age.
type Photo struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Data      []byte    `json:"-"`
	Uploaded  bool      `json:"uploaded"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the photo including its payload bytes.
func (p *Photo) Clone() *Photo {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Data = append([]byte(nil), p.Data...)
	return &cp
}
