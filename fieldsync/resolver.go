// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"github.com/fieldops/fieldsync/fieldstore"
)

// Resolver reconciles a locally-held order against a divergent server
// version reported during push.
type Resolver interface {
	// Resolve returns the record that should be stored locally. The result is
	// always persisted with sync status "synced".
	Resolve(local, server *fieldstore.ServiceOrder) *fieldstore.ServiceOrder
}

// ServerWins is the default policy: the server's version always replaces the
// local copy, with no field-level merge. A deliberate simplicity/safety
// tradeoff that avoids split-brain state at the cost of occasionally
// discarding an offline edit that collided with a concurrent server change.
type ServerWins struct{}

var _ Resolver = ServerWins{}

// Resolve discards the local record in favor of the server's version.
func (ServerWins) Resolve(_, server *fieldstore.ServiceOrder) *fieldstore.ServiceOrder {
	resolved := server.Clone()
	resolved.SyncStatus = fieldstore.SyncSynced
	return resolved
}
