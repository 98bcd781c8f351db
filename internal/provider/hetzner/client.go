// Package hetzner adapts Hetzner Cloud to the provider.Provider interface.
// It is the first and, so far, only implemented provider adapter; its
// create/wait/delete/poll shape is grounded directly in a Hetzner client
// written for a different product that happened to use the same vendor.
package hetzner

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/rs/zerolog/log"

	"github.com/spuff/spuff/internal/provider"
)

const snapshotPrefix = "spuff-"

// Client implements provider.Provider against the Hetzner Cloud API.
type Client struct {
	hc        *hcloud.Client
	timeouts  provider.Timeouts
	sshKeyIDs []int64
	networkID int64
}

// Option configures optional Client behavior beyond the bare API token.
type Option func(*Client)

// WithSSHKeyIDs attaches the given Hetzner SSH key IDs to every created
// server, in addition to whatever key cloud-init injects.
func WithSSHKeyIDs(ids []int64) Option {
	return func(c *Client) { c.sshKeyIDs = ids }
}

// WithNetworkID attaches created servers to an existing private network.
func WithNetworkID(id int64) Option {
	return func(c *Client) { c.networkID = id }
}

// New builds a Hetzner adapter from an API token.
func New(token string, timeouts provider.Timeouts, opts ...Option) (provider.Provider, error) {
	if strings.TrimSpace(token) == "" {
		return nil, provider.NewAuthError("hetzner", "missing API token")
	}
	c := &Client{
		hc:       hcloud.NewClient(hcloud.WithToken(token)),
		timeouts: timeouts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Factory adapts New to the provider.Factory signature for registration.
func Factory(opts ...Option) provider.Factory {
	return func(token string, timeouts provider.Timeouts) (provider.Provider, error) {
		return New(token, timeouts, opts...)
	}
}

func (c *Client) Name() string { return "hetzner" }

func (c *Client) SupportsSnapshots() bool { return true }

func (c *Client) GetSSHKeys(ctx context.Context) ([]string, error) {
	keys, err := c.hc.SSHKey.All(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Name)
	}
	return names, nil
}

func (c *Client) CreateInstance(ctx context.Context, req *provider.InstanceRequest) (*provider.Instance, error) {
	serverType, _, err := c.hc.ServerType.GetByName(ctx, req.Size)
	if err != nil {
		return nil, mapError(err)
	}
	if serverType == nil {
		return nil, provider.NewInvalidConfigError("size", fmt.Sprintf("unknown server type %q", req.Size))
	}

	location, _, err := c.hc.Location.GetByName(ctx, req.Region)
	if err != nil {
		return nil, mapError(err)
	}
	if location == nil {
		return nil, provider.NewInvalidConfigError("region", fmt.Sprintf("unknown location %q", req.Region))
	}

	image, err := c.resolveImage(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	opts := hcloud.ServerCreateOpts{
		Name:       req.Name,
		ServerType: serverType,
		Image:      image,
		Location:   location,
		Labels:     req.Labels,
	}
	if req.HasUser {
		opts.UserData = req.UserData
	}
	if len(c.sshKeyIDs) > 0 {
		opts.SSHKeys = make([]*hcloud.SSHKey, 0, len(c.sshKeyIDs))
		for _, id := range c.sshKeyIDs {
			opts.SSHKeys = append(opts.SSHKeys, &hcloud.SSHKey{ID: id})
		}
	}
	if c.networkID != 0 {
		opts.Networks = []*hcloud.Network{{ID: c.networkID}}
	}

	result, _, err := c.hc.Server.Create(ctx, opts)
	if err != nil {
		return nil, mapError(err)
	}

	log.Info().
		Int64("hetzner_id", result.Server.ID).
		Str("name", req.Name).
		Msg("instance created")

	return serverToInstance(result.Server), nil
}

func (c *Client) resolveImage(ctx context.Context, spec provider.ImageSpec) (*hcloud.Image, error) {
	switch spec.Kind {
	case provider.ImageUbuntu:
		name := "ubuntu-" + normalizeVersion(spec.Version)
		image, _, err := c.hc.Image.GetByName(ctx, name)
		if err != nil {
			return nil, mapError(err)
		}
		if image == nil {
			return nil, provider.NewInvalidConfigError("image", fmt.Sprintf("unknown image %q", name))
		}
		return image, nil
	case provider.ImageDebian:
		name := "debian-" + spec.Version
		image, _, err := c.hc.Image.GetByName(ctx, name)
		if err != nil {
			return nil, mapError(err)
		}
		if image == nil {
			return nil, provider.NewInvalidConfigError("image", fmt.Sprintf("unknown image %q", name))
		}
		return image, nil
	case provider.ImageCustom, provider.ImageSnapshot:
		id, err := parseImageID(spec.ID)
		if err != nil {
			return nil, provider.NewInvalidConfigError("image", err.Error())
		}
		image, _, err := c.hc.Image.GetByID(ctx, id)
		if err != nil {
			return nil, mapError(err)
		}
		if image == nil {
			return nil, provider.NewNotFoundError("image", spec.ID)
		}
		return image, nil
	default:
		return nil, provider.NewInvalidConfigError("image", "unrecognized image kind")
	}
}

// normalizeVersion turns "24.04" into "24.04" (Hetzner image names already
// use dotted versions), kept as its own function since other providers'
// naming schemes differ and callers should not assume identity.
func normalizeVersion(v string) string { return v }

func (c *Client) DestroyInstance(ctx context.Context, id string) error {
	serverID, err := parseImageID(id)
	if err != nil {
		return provider.NewInvalidConfigError("id", err.Error())
	}
	server, _, err := c.hc.Server.GetByID(ctx, serverID)
	if err != nil {
		return mapError(err)
	}
	if server == nil {
		return nil
	}
	if _, _, err := c.hc.Server.DeleteWithResult(ctx, server); err != nil {
		return mapError(err)
	}
	log.Info().Int64("hetzner_id", serverID).Msg("instance destroyed")
	return nil
}

func (c *Client) GetInstance(ctx context.Context, id string) (*provider.Instance, error) {
	serverID, err := parseImageID(id)
	if err != nil {
		return nil, provider.NewInvalidConfigError("id", err.Error())
	}
	server, _, err := c.hc.Server.GetByID(ctx, serverID)
	if err != nil {
		return nil, mapError(err)
	}
	if server == nil {
		return nil, nil
	}
	return serverToInstance(server), nil
}

func (c *Client) ListInstances(ctx context.Context) ([]*provider.Instance, error) {
	servers, err := c.hc.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: "managed-by=spuff"},
	})
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]*provider.Instance, 0, len(servers))
	for _, s := range servers {
		out = append(out, serverToInstance(s))
	}
	return out, nil
}

func (c *Client) WaitReady(ctx context.Context, id string) (*provider.Instance, error) {
	start := time.Now()
	interval := time.Duration(c.timeouts.PollInterval.Seconds()) * time.Second
	deadline := time.Duration(c.timeouts.InstanceReady.Seconds()) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()

	for {
		instance, err := c.GetInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		if instance == nil {
			return nil, provider.NewNotFoundError("instance", id)
		}
		if instance.IsReady() {
			return instance, nil
		}

		select {
		case <-ticker.C:
			continue
		case <-timeout.C:
			return nil, provider.NewTimeoutError("wait_ready", time.Since(start))
		case <-ctx.Done():
			return nil, provider.NewNetworkError(ctx.Err())
		}
	}
}

func (c *Client) CreateSnapshot(ctx context.Context, instanceID, name string) (*provider.Snapshot, error) {
	serverID, err := parseImageID(instanceID)
	if err != nil {
		return nil, provider.NewInvalidConfigError("instance_id", err.Error())
	}
	server, _, err := c.hc.Server.GetByID(ctx, serverID)
	if err != nil {
		return nil, mapError(err)
	}
	if server == nil {
		return nil, provider.NewNotFoundError("instance", instanceID)
	}

	fullName := name
	if !strings.HasPrefix(fullName, snapshotPrefix) {
		fullName = snapshotPrefix + fullName
	}

	result, _, err := c.hc.Server.CreateImage(ctx, server, &hcloud.ServerCreateImageOpts{
		Type:        hcloud.ImageTypeSnapshot,
		Description: &fullName,
	})
	if err != nil {
		return nil, mapError(err)
	}

	if err := c.waitForAction(ctx, result.Action); err != nil {
		return nil, err
	}

	return &provider.Snapshot{
		ID:        fmt.Sprintf("%d", result.Image.ID),
		Name:      fullName,
		CreatedAt: time.Now().UTC(),
		HasTime:   true,
	}, nil
}

func (c *Client) ListSnapshots(ctx context.Context) ([]*provider.Snapshot, error) {
	images, err := c.hc.Image.AllWithOpts(ctx, hcloud.ImageListOpts{
		Type: []hcloud.ImageType{hcloud.ImageTypeSnapshot},
	})
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]*provider.Snapshot, 0, len(images))
	for _, img := range images {
		if !strings.HasPrefix(img.Description, snapshotPrefix) {
			continue
		}
		out = append(out, &provider.Snapshot{
			ID:        fmt.Sprintf("%d", img.ID),
			Name:      img.Description,
			CreatedAt: img.Created,
			HasTime:   !img.Created.IsZero(),
		})
	}
	return out, nil
}

func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	imageID, err := parseImageID(id)
	if err != nil {
		return provider.NewInvalidConfigError("id", err.Error())
	}
	image, _, err := c.hc.Image.GetByID(ctx, imageID)
	if err != nil {
		return mapError(err)
	}
	if image == nil {
		return nil
	}
	if _, err := c.hc.Image.Delete(ctx, image); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) waitForAction(ctx context.Context, action *hcloud.Action) error {
	start := time.Now()
	interval := time.Duration(c.timeouts.PollInterval.Seconds()) * time.Second
	deadline := time.Duration(c.timeouts.ActionComplete.Seconds()) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()

	for {
		a, _, err := c.hc.Action.GetByID(ctx, action.ID)
		if err != nil {
			return mapError(err)
		}
		switch a.Status {
		case hcloud.ActionStatusSuccess:
			return nil
		case hcloud.ActionStatusError:
			return provider.NewAPIError(0, a.ErrorMessage)
		}

		select {
		case <-ticker.C:
			continue
		case <-timeout.C:
			return provider.NewTimeoutError("action_complete", time.Since(start))
		case <-ctx.Done():
			return provider.NewNetworkError(ctx.Err())
		}
	}
}

func serverToInstance(s *hcloud.Server) *provider.Instance {
	var ip net.IP
	if s.PublicNet.IPv4.IP != nil {
		ip = s.PublicNet.IPv4.IP
	} else {
		ip = net.IPv4zero
	}
	return &provider.Instance{
		ID:        fmt.Sprintf("%d", s.ID),
		IP:        ip,
		Status:    statusFromHcloud(s.Status),
		CreatedAt: s.Created,
	}
}

func statusFromHcloud(s hcloud.ServerStatus) provider.Status {
	switch s {
	case hcloud.ServerStatusInitializing, hcloud.ServerStatusStarting:
		return provider.StatusNew
	case hcloud.ServerStatusRunning:
		return provider.StatusActive
	case hcloud.ServerStatusOff, hcloud.ServerStatusStopping:
		return provider.StatusOff
	case hcloud.ServerStatusDeleting:
		return provider.StatusArchive
	default:
		return provider.StatusUnknown
	}
}

func parseImageID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	if err != nil {
		return 0, fmt.Errorf("not a numeric id: %q", s)
	}
	return id, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if hErr, ok := err.(hcloud.Error); ok {
		switch hErr.Code {
		case hcloud.ErrorCodeUnauthorized, hcloud.ErrorCodeForbidden:
			return provider.NewAuthError("hetzner", hErr.Message)
		case hcloud.ErrorCodeNotFound:
			return provider.NewNotFoundError("resource", hErr.Message)
		case hcloud.ErrorCodeRateLimitExceeded:
			return provider.NewRateLimitError(0, false)
		case hcloud.ErrorCodeResourceLimitExceeded:
			return provider.NewQuotaExceededError("hetzner", hErr.Message)
		default:
			return provider.NewAPIError(0, hErr.Message)
		}
	}
	return provider.NewNetworkError(err)
}
