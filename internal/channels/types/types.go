// Package types defines shared types for the channels package.
// This is a separate package to avoid circular imports between
// channels/manager.go and the individual channel implementations.
package types

import (
	"context"
	"time"
)

// ChannelStatus represents the current state of a managed channel
type ChannelStatus struct {
	Running   bool      // Whether the channel is currently running
	Connected bool      // For channels with external connections
	Error     error     // Last error if any
	StartedAt time.Time // When the channel was started
	Info      string    // Human-readable status info (e.g., "@botname", ":8090")
}

// ManagedChannel defines lifecycle management for channel adapters.
// Start blocks until the adapter is connected or listening and returns an
// error on fatal connection failure. Stop releases the underlying
// connection or listener; work already in flight is not aborted.
type ManagedChannel interface {
	// Name returns the channel's identifier
	Name() string

	// Start connects the channel and begins dispatching inbound events
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel
	Stop() error

	// Status returns the current channel status
	Status() ChannelStatus
}
