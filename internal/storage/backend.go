// Package storage defines the abstract record-CRUD contract that the
// object cache drives, and the typed error kinds a backend may
// surface. Concrete backends live in the calendar and memory
// subpackages.
package storage

import "context"

// Role identifies what an object-cache layer is storing in a record.
type Role uint8

const (
	RoleRoot Role = iota
	RoleInodeFile
	RoleInodeDir
	RoleBlock
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleInodeFile:
		return "inode-file"
	case RoleInodeDir:
		return "inode-dir"
	case RoleBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Record is the abstract storage unit: a backend-assigned id, a role,
// a bounded payload, and an optional next pointer chaining it to
// another record of the same logical object.
//
// Owner and Index are an auxiliary classification side-channel: Owner
// is the inode number this record belongs to (the inode's own number
// for root/inode records, the owning file's inode number for block
// records); Index is the block index for RoleBlock records and zero
// otherwise. A backend MAY mirror them into a side channel outside
// the payload (the calendar backend uses the event start/end
// timestamps) so a mount-recovery scan can classify records without
// decoding every payload; no backend is required to use them for
// correctness, since payload + header alone round-trip on their own.
type Record struct {
	ID      string
	Role    Role
	Payload []byte
	Next    string // "" means absent
	Owner   uint64
	Index   uint64
}

// Backend is the capability set a storage implementation must provide
// (get/put/update/delete/scan/root_of). A Backend instance is bound to
// a single calendar for the lifetime of a mount.
type Backend interface {
	// Get fetches a record by id. Returns a *NotFoundErr if absent.
	Get(ctx context.Context, id string) (Record, error)

	// Put creates a new record and returns its assigned id.
	Put(ctx context.Context, role Role, payload []byte, next string, owner, index uint64) (string, error)

	// Update replaces the payload/next of an existing record.
	Update(ctx context.Context, id string, payload []byte, next string) error

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error

	// Scan enumerates every record in the bound calendar. Used only
	// during mount-from-existing recovery.
	Scan(ctx context.Context) ([]Record, error)

	// RootOf resolves the root record id. hint, when non-empty, is a
	// caller-supplied candidate (e.g. --root-event); an implementation
	// may use it directly or validate it against a scan.
	RootOf(ctx context.Context, hint string) (string, error)

	// CalendarID returns the id of the calendar this backend is bound to.
	CalendarID() string
}
