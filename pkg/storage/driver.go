// Package storage persists call-log records.
package storage

import (
	"context"

	"github.com/papercomputeco/switchboard/pkg/calllog"
)

// Driver defines the interface for persisting and querying call records in a
// storage backend.
type Driver interface {
	// Put stores a record. Storing a record whose ID already exists replaces
	// it.
	Put(ctx context.Context, rec *calllog.Record) error

	// Get retrieves a record by ID. Returns NotFoundError when absent.
	Get(ctx context.Context, id string) (*calllog.Record, error)

	// List returns up to limit records, newest first. A limit <= 0 returns
	// every record.
	List(ctx context.Context, limit int) ([]*calllog.Record, error)

	// Stats summarizes every stored record.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the store and releases any resources.
	Close() error
}
