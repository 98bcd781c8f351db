package provider

import (
	"context"
	"net"
	"time"
)

// Status is an instance's lifecycle state as reported by the provider.
type Status int

const (
	StatusNew Status = iota
	StatusActive
	StatusOff
	StatusArchive
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusActive:
		return "active"
	case StatusOff:
		return "off"
	case StatusArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Instance is an instance as seen by the cloud provider. Local tracking is
// a separate concern, handled by the store package.
type Instance struct {
	ID            string
	IP            net.IP
	Status        Status
	UnknownStatus string // populated only when Status == StatusUnknown
	CreatedAt     time.Time
}

// IsReady reports the wait_ready condition: active status and an assigned
// (non-unspecified) IP.
func (i Instance) IsReady() bool {
	return i.Status == StatusActive && i.IP != nil && !i.IP.IsUnspecified()
}

// Snapshot is a point-in-time image of an instance.
type Snapshot struct {
	ID        string
	Name      string
	CreatedAt time.Time
	HasTime   bool
}

// Provider is the capability set every cloud adapter implements. All
// methods return *Error (satisfying error) so callers can inspect Kind
// without string matching.
type Provider interface {
	// Name identifies the adapter for logging.
	Name() string

	// CreateInstance starts provisioning and may return before the
	// instance is reachable; call WaitReady to block until it is.
	CreateInstance(ctx context.Context, req *InstanceRequest) (*Instance, error)

	// DestroyInstance is idempotent: destroying a missing instance
	// succeeds silently.
	DestroyInstance(ctx context.Context, id string) error

	// GetInstance returns (nil, nil) if id does not exist.
	GetInstance(ctx context.Context, id string) (*Instance, error)

	// ListInstances returns every instance tagged managed-by=spuff.
	ListInstances(ctx context.Context) ([]*Instance, error)

	// WaitReady blocks until the instance is active with an assigned IP,
	// or returns a timeout Error.
	WaitReady(ctx context.Context, id string) (*Instance, error)

	// CreateSnapshot blocks until the vendor's async snapshot action
	// completes.
	CreateSnapshot(ctx context.Context, instanceID, name string) (*Snapshot, error)

	// ListSnapshots returns every snapshot with the spuff- prefix.
	ListSnapshots(ctx context.Context) ([]*Snapshot, error)

	// DeleteSnapshot is idempotent.
	DeleteSnapshot(ctx context.Context, id string) error

	// GetSSHKeys returns provider-managed SSH key identifiers configured
	// in the account. Most adapters rely on cloud-init for key injection
	// instead and return an empty slice.
	GetSSHKeys(ctx context.Context) ([]string, error)

	// SupportsSnapshots reports whether the adapter backs the snapshot
	// methods with a real implementation.
	SupportsSnapshots() bool
}

// Factory constructs a Provider from an API token and timeout policy. The
// registry calls this once per CreateByName lookup.
type Factory func(token string, timeouts Timeouts) (Provider, error)
