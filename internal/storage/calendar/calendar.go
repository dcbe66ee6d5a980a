// Package calendar implements storage.Backend against Google Calendar
// REST v3, the reference storage backend. Every WhenFS
// record is one calendar event; the codec's framed, base64-encoded
// bytes live in the event description, the chain's next-pointer lives
// in the summary, and the owner inode / block index side channel (see
// storage.Record) lives in the event's start/end timestamps.
package calendar

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/whenfs/whenfs/internal/codec"
	"github.com/whenfs/whenfs/internal/logging"
	"github.com/whenfs/whenfs/internal/storage"
)

// Backend is the Google-Calendar-backed implementation of storage.Backend.
type Backend struct {
	svc        *gcal.Service
	calendarID string
	backoff    storage.Backoff

	mu    sync.Mutex
	cache map[string]storage.Record // read-your-writes cache over eventually consistent calendar reads
}

// Open binds a Backend to an existing calendar id, or creates a new
// calendar named volumeName when calendarID is empty.
func Open(ctx context.Context, client *http.Client, calendarID, volumeName string) (*Backend, error) {
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, &storage.AuthErr{Err: fmt.Errorf("building calendar client: %w", err)}
	}
	b := &Backend{svc: svc, backoff: storage.DefaultBackoff(), cache: make(map[string]storage.Record)}

	if calendarID != "" {
		b.calendarID = calendarID
		return b, nil
	}

	created, err := svc.Calendars.Insert(&gcal.Calendar{Summary: volumeName}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	b.calendarID = created.Id
	return b, nil
}

func (b *Backend) CalendarID() string { return b.calendarID }

func (b *Backend) Get(ctx context.Context, id string) (storage.Record, error) {
	b.mu.Lock()
	if rec, ok := b.cache[id]; ok {
		b.mu.Unlock()
		return rec, nil
	}
	b.mu.Unlock()

	var rec storage.Record
	err := b.backoff.Retry(ctx, func() error {
		ev, err := b.svc.Events.Get(b.calendarID, id).Context(ctx).Do()
		if err != nil {
			return classify(err)
		}
		decoded, derr := decodeEvent(ev)
		if derr != nil {
			return derr
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return storage.Record{}, err
	}

	b.mu.Lock()
	b.cache[id] = rec
	b.mu.Unlock()
	return rec, nil
}

func (b *Backend) Put(ctx context.Context, role storage.Role, payload []byte, next string, owner, index uint64) (string, error) {
	ev := encodeEvent(role, payload, next, owner, index)

	var id string
	err := b.backoff.Retry(ctx, func() error {
		created, err := b.svc.Events.Insert(b.calendarID, ev).Context(ctx).Do()
		if err != nil {
			return classify(err)
		}
		id = created.Id
		return nil
	})
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.cache[id] = storage.Record{ID: id, Role: role, Payload: append([]byte(nil), payload...), Next: next, Owner: owner, Index: index}
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) Update(ctx context.Context, id string, payload []byte, next string) error {
	existing, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	ev := encodeEvent(existing.Role, payload, next, existing.Owner, existing.Index)
	ev.Id = id

	err = b.backoff.Retry(ctx, func() error {
		_, err := b.svc.Events.Update(b.calendarID, id, ev).Context(ctx).Do()
		return classify(err)
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.cache[id] = storage.Record{ID: id, Role: existing.Role, Payload: append([]byte(nil), payload...), Next: next, Owner: existing.Owner, Index: existing.Index}
	b.mu.Unlock()
	return nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	err := b.backoff.Retry(ctx, func() error {
		err := b.svc.Events.Delete(b.calendarID, id).Context(ctx).Do()
		if isGoneOrNotFound(err) {
			return nil
		}
		return classify(err)
	})
	b.mu.Lock()
	delete(b.cache, id)
	b.mu.Unlock()
	return err
}

func (b *Backend) Scan(ctx context.Context) ([]storage.Record, error) {
	var out []storage.Record
	pageToken := ""
	for {
		var page *gcal.Events
		err := b.backoff.Retry(ctx, func() error {
			call := b.svc.Events.List(b.calendarID).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			p, err := call.Do()
			if err != nil {
				return classify(err)
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, ev := range page.Items {
			rec, derr := decodeEvent(ev)
			if derr != nil {
				logging.Warn("scan: skipping unreadable event %s: %v", ev.Id, derr)
				continue
			}
			out = append(out, rec)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	b.mu.Lock()
	for _, rec := range out {
		b.cache[rec.ID] = rec
	}
	b.mu.Unlock()
	return out, nil
}

func (b *Backend) RootOf(ctx context.Context, hint string) (string, error) {
	if hint != "" {
		rec, err := b.Get(ctx, hint)
		if err != nil {
			return "", err
		}
		if rec.Role != storage.RoleRoot {
			return "", &storage.CorruptRecordErr{ID: hint, Reason: "root-event does not hold a root record"}
		}
		return hint, nil
	}

	records, err := b.Scan(ctx)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if rec.Role == storage.RoleRoot {
			return rec.ID, nil
		}
	}
	return "", &storage.NotFoundErr{ID: "<root>"}
}

func encodeEvent(role storage.Role, payload []byte, next string, owner, index uint64) *gcal.Event {
	now := time.Unix(int64(owner), 0).UTC()
	end := time.Unix(int64(index), 0).UTC()
	return &gcal.Event{
		Summary:     next,
		Description: codec.EncodeRecordText(role, payload),
		Start:       &gcal.EventDateTime{DateTime: now.Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: "UTC"},
	}
}

func decodeEvent(ev *gcal.Event) (storage.Record, error) {
	role, payload, err := codec.DecodeRecordText(ev.Description)
	if err != nil {
		if cr, ok := err.(*storage.CorruptRecordErr); ok {
			cr.ID = ev.Id
		}
		return storage.Record{}, err
	}
	owner, index := decodeSideChannel(ev)
	return storage.Record{
		ID:      ev.Id,
		Role:    role,
		Payload: payload,
		Next:    ev.Summary,
		Owner:   owner,
		Index:   index,
	}, nil
}

func decodeSideChannel(ev *gcal.Event) (owner, index uint64) {
	if ev.Start != nil {
		if t, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil {
			owner = uint64(t.Unix())
		}
	}
	if ev.End != nil {
		if t, err := time.Parse(time.RFC3339, ev.End.DateTime); err == nil {
			index = uint64(t.Unix())
		}
	}
	return owner, index
}

func isGoneOrNotFound(err error) bool {
	if err == nil {
		return false
	}
	if gerr, ok := err.(*googleapi.Error); ok {
		return gerr.Code == 404 || gerr.Code == 410
	}
	return false
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if gerr, ok := err.(*googleapi.Error); ok {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return &storage.AuthErr{Err: gerr}
		case gerr.Code == 404:
			return &storage.NotFoundErr{ID: ""}
		case gerr.Code == 429 || gerr.Code >= 500:
			return &storage.TransientErr{Err: gerr}
		default:
			return gerr
		}
	}
	return &storage.TransientErr{Err: err}
}
