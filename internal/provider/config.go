// Package provider defines the cloud provider abstraction: a capability set
// any adapter must implement, a structured error taxonomy, and a registry
// mapping provider names to factories. See the Hetzner adapter in the
// hetzner subpackage for the first concrete implementation.
package provider

import "strings"

// ImageKind tags which variant of ImageSpec is populated.
type ImageKind int

const (
	ImageUbuntu ImageKind = iota
	ImageDebian
	ImageCustom
	ImageSnapshot
)

// ImageSpec is a provider-agnostic base image reference. Exactly one of the
// fields implied by Kind is meaningful; adapters resolve it to their own
// image ID format.
type ImageSpec struct {
	Kind    ImageKind
	Version string // Ubuntu/Debian version
	ID      string // Custom/Snapshot vendor ID
}

// DefaultImageSpec is Ubuntu 24.04, matching the original's Default impl.
func DefaultImageSpec() ImageSpec {
	return ImageSpec{Kind: ImageUbuntu, Version: "24.04"}
}

func UbuntuImage(version string) ImageSpec  { return ImageSpec{Kind: ImageUbuntu, Version: version} }
func DebianImage(version string) ImageSpec  { return ImageSpec{Kind: ImageDebian, Version: version} }
func CustomImage(id string) ImageSpec       { return ImageSpec{Kind: ImageCustom, ID: id} }
func SnapshotImage(id string) ImageSpec     { return ImageSpec{Kind: ImageSnapshot, ID: id} }

// InstanceRequest is the cloud-agnostic creation input. It is built by the
// Orchestrator, consumed by a Provider adapter, and never mutated after
// construction.
type InstanceRequest struct {
	Name     string
	Region   string
	Size     string
	Image    ImageSpec
	UserData string
	HasUser  bool
	Labels   map[string]string
}

// NewInstanceRequest builds a request with the required fields, a default
// Ubuntu 24.04 image, and the mandatory managed-by=spuff label.
func NewInstanceRequest(name, region, size string) *InstanceRequest {
	return &InstanceRequest{
		Name:   name,
		Region: region,
		Size:   size,
		Image:  DefaultImageSpec(),
		Labels: map[string]string{"managed-by": "spuff"},
	}
}

func (r *InstanceRequest) WithImage(image ImageSpec) *InstanceRequest {
	r.Image = image
	return r
}

func (r *InstanceRequest) WithUserData(userData string) *InstanceRequest {
	r.UserData = userData
	r.HasUser = true
	return r
}

func (r *InstanceRequest) WithLabel(key, value string) *InstanceRequest {
	if r.Labels == nil {
		r.Labels = map[string]string{}
	}
	r.Labels[key] = value
	return r
}

func (r *InstanceRequest) WithLabels(labels map[string]string) *InstanceRequest {
	if r.Labels == nil {
		r.Labels = map[string]string{}
	}
	for k, v := range labels {
		r.Labels[k] = v
	}
	return r
}

// Timeouts controls how long provider operations wait before failing.
// Defaults mirror the original implementation's ProviderTimeouts.
type Timeouts struct {
	InstanceReady   DurationSeconds
	ActionComplete  DurationSeconds
	PollInterval    DurationSeconds
	HTTPRequest     DurationSeconds
	SSHConnect      DurationSeconds
	CloudInit       DurationSeconds
}

// DurationSeconds avoids importing time into config construction call
// sites that only ever deal in whole seconds; Seconds() converts.
type DurationSeconds int64

func (d DurationSeconds) Seconds() int64 { return int64(d) }

// DefaultTimeouts matches the original implementation's defaults: 5 minute
// instance-ready, 10 minute action-complete, 5 second poll interval.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		InstanceReady:  300,
		ActionComplete: 600,
		PollInterval:   5,
		HTTPRequest:    30,
		SSHConnect:     300,
		CloudInit:      600,
	}
}

// MaxAttempts returns how many poll_interval-spaced attempts fit within
// operationTimeout.
func (t Timeouts) MaxAttempts(operationTimeout DurationSeconds) int {
	interval := t.PollInterval
	if interval < 1 {
		interval = 1
	}
	return int(operationTimeout / interval)
}

func (t Timeouts) InstanceReadyAttempts() int  { return t.MaxAttempts(t.InstanceReady) }
func (t Timeouts) ActionCompleteAttempts() int { return t.MaxAttempts(t.ActionComplete) }

// Type enumerates the cloud providers the registry knows the name of.
// IsImplemented distinguishes "known" from "has a working adapter" exactly
// as the registry's create_by_name path needs to.
type Type int

const (
	TypeDigitalOcean Type = iota
	TypeHetzner
	TypeAWS
)

// AllTypes lists every provider the registry can name.
var AllTypes = []Type{TypeDigitalOcean, TypeHetzner, TypeAWS}

func (t Type) String() string {
	switch t {
	case TypeDigitalOcean:
		return "digitalocean"
	case TypeHetzner:
		return "hetzner"
	case TypeAWS:
		return "aws"
	default:
		return "unknown"
	}
}

// SupportedNames lists every provider name the registry recognizes.
func SupportedNames() []string {
	names := make([]string, len(AllTypes))
	for i, t := range AllTypes {
		names[i] = t.String()
	}
	return names
}

// TypeFromString parses a provider name, accepting the short aliases the
// original CLI accepted ("do", "hcloud", "ec2").
func TypeFromString(s string) (Type, bool) {
	switch strings.ToLower(s) {
	case "digitalocean", "do":
		return TypeDigitalOcean, true
	case "hetzner", "hcloud":
		return TypeHetzner, true
	case "aws", "ec2":
		return TypeAWS, true
	default:
		return 0, false
	}
}

// TokenEnvVar names the environment variable holding this provider's API
// token.
func (t Type) TokenEnvVar() string {
	switch t {
	case TypeDigitalOcean:
		return "DIGITALOCEAN_TOKEN"
	case TypeHetzner:
		return "HETZNER_TOKEN"
	case TypeAWS:
		return "AWS_ACCESS_KEY_ID"
	default:
		return ""
	}
}

// IsImplemented reports whether a working adapter is registered for t.
// Hetzner is spuff's first and only implemented provider; DigitalOcean and
// AWS are named but not yet built.
func (t Type) IsImplemented() bool {
	return t == TypeHetzner
}
