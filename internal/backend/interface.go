// Package backend assembles the ledger store and the optional event
// publisher selected by DATA_BACKEND and AMQP_URL.
package backend

import (
	"context"
	"fmt"
	"strings"

	"dinero/internal/ledger"
)

// CleanupFunc releases whatever a backend opened.
type CleanupFunc func() error

// BackendResult is a ready ledger backend.
type BackendResult struct {
	Store     ledger.Store
	Publisher ledger.Publisher // nil when AMQP is disabled or unreachable
	Cleanup   CleanupFunc
}

// EventsEnabled reports whether appends are announced on the broker.
func (r *BackendResult) EventsEnabled() bool {
	return r.Publisher != nil
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Type BackendType

	// SQLiteDBPath is required for the sqlite backend.
	SQLiteDBPath string

	// Memory backend seed directory; a missing directory starts empty.
	DataDirectory string

	// Broker settings apply to every backend. An empty URL disables events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType names a ledger store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// ParseBackendType accepts a backend name case-insensitively.
func ParseBackendType(s string) (BackendType, error) {
	bt := BackendType(strings.ToLower(strings.TrimSpace(s)))
	if !bt.IsValid() {
		return "", fmt.Errorf("invalid backend type %q: must be one of %v", s, GetBackendTypeStrings())
	}
	return bt, nil
}

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Durable reports whether entries survive a restart.
func (bt BackendType) Durable() bool {
	return bt == SQLiteBackend
}
