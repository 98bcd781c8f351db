package provider

import "testing"

func stubFactory(p Provider) Factory {
	return func(token string, timeouts Timeouts) (Provider, error) {
		return p, nil
	}
}

func TestRegistryCreateByNameUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateByName("unknown", "token", DefaultTimeouts())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindUnknownProvider {
		t.Errorf("err = %v, want KindUnknownProvider", err)
	}
}

func TestRegistryNotImplemented(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.CreateByName("digitalocean", "token", DefaultTimeouts())
	perr, ok := err.(*Error)
	if !ok || perr.Kind != KindNotImplemented {
		t.Errorf("err = %v, want KindNotImplemented", err)
	}
}

func TestRegistryCreateRegistered(t *testing.T) {
	reg := NewRegistry()
	reg.Register(TypeHetzner, stubFactory(nil))

	if !reg.IsRegistered(TypeHetzner) {
		t.Error("expected hetzner to be registered")
	}

	p, err := reg.CreateByName("hcloud", "token", DefaultTimeouts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("stub factory returns nil provider")
	}
}

func TestRegistryImplementedTypes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(TypeHetzner, stubFactory(nil))
	reg.Register(TypeDigitalOcean, stubFactory(nil))

	implemented := reg.ImplementedTypes()
	found := false
	for _, t2 := range implemented {
		if t2 == TypeHetzner {
			found = true
		}
		if t2 == TypeDigitalOcean {
			t.Error("digitalocean should not appear in implemented types")
		}
	}
	if !found {
		t.Error("expected hetzner in implemented types")
	}
}
