package backend

import (
	"context"
	"time"

	"finanzas/internal/finance"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend finance.Backend
	// Invalidator is nil when the backend does not cache lists.
	Invalidator ListInvalidator
	Cleanup     CleanupFunc
}

// ListInvalidator drops cached backend lists so the next load refetches.
type ListInvalidator interface {
	InvalidateLists()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// API specific
	APIBaseURL string
	APIToken   string
	APITimeout time.Duration

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	APIBackend    BackendType = "api"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case APIBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
