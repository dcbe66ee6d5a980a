// Package factory builds a concrete storage.Backend from CLI
// configuration: the Google Calendar reference backend or the
// in-memory fake used for tests and credential-free local runs.
package factory

import (
	"context"
	"fmt"
	"net/http"

	"github.com/whenfs/whenfs/internal/storage"
	"github.com/whenfs/whenfs/internal/storage/calendar"
	"github.com/whenfs/whenfs/internal/storage/memory"
)

type BackendType string

const (
	BackendTypeCalendar BackendType = "calendar"
	BackendTypeMemory   BackendType = "memory"
)

// Config holds the parameters needed to construct either backend.
type Config struct {
	Type BackendType

	// Calendar backend fields.
	HTTPClient *http.Client
	CalendarID string
	VolumeName string

	// Memory backend fields.
	MemoryCalendarID string
}

// New builds a storage.Backend per cfg.Type.
func New(ctx context.Context, cfg Config) (storage.Backend, error) {
	switch cfg.Type {
	case BackendTypeCalendar:
		if cfg.HTTPClient == nil {
			return nil, fmt.Errorf("authenticated HTTP client is required for the calendar backend")
		}
		return calendar.Open(ctx, cfg.HTTPClient, cfg.CalendarID, cfg.VolumeName)

	case BackendTypeMemory:
		id := cfg.MemoryCalendarID
		if id == "" {
			id = "memory"
		}
		return memory.NewBackend(id), nil

	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
