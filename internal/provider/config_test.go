package provider

import "testing"

func TestInstanceRequestBuilder(t *testing.T) {
	req := NewInstanceRequest("test", "nyc1", "s-2vcpu-4gb").
		WithImage(UbuntuImage("24.04")).
		WithUserData("#cloud-config").
		WithLabel("env", "dev").
		WithLabel("team", "platform")

	if req.Name != "test" || req.Region != "nyc1" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Labels["env"] != "dev" || req.Labels["team"] != "platform" {
		t.Errorf("labels not set: %+v", req.Labels)
	}
	if req.Labels["managed-by"] != "spuff" {
		t.Error("expected managed-by=spuff label to survive construction")
	}
}

func TestDefaultImageSpec(t *testing.T) {
	spec := DefaultImageSpec()
	if spec.Kind != ImageUbuntu || spec.Version != "24.04" {
		t.Errorf("DefaultImageSpec() = %+v, want Ubuntu 24.04", spec)
	}
}

func TestTimeoutsMaxAttempts(t *testing.T) {
	timeouts := DefaultTimeouts()
	if got := timeouts.InstanceReadyAttempts(); got != 60 {
		t.Errorf("InstanceReadyAttempts() = %d, want 60", got)
	}
	if got := timeouts.ActionCompleteAttempts(); got != 120 {
		t.Errorf("ActionCompleteAttempts() = %d, want 120", got)
	}
}

func TestTypeFromString(t *testing.T) {
	cases := map[string]Type{
		"digitalocean": TypeDigitalOcean,
		"do":           TypeDigitalOcean,
		"hetzner":      TypeHetzner,
		"hcloud":       TypeHetzner,
		"aws":          TypeAWS,
		"ec2":          TypeAWS,
	}
	for input, want := range cases {
		got, ok := TypeFromString(input)
		if !ok || got != want {
			t.Errorf("TypeFromString(%q) = %v, %v; want %v, true", input, got, ok, want)
		}
	}
	if _, ok := TypeFromString("unknown"); ok {
		t.Error("expected TypeFromString(\"unknown\") to fail")
	}
}

func TestTokenEnvVar(t *testing.T) {
	if got := TypeHetzner.TokenEnvVar(); got != "HETZNER_TOKEN" {
		t.Errorf("TokenEnvVar() = %q, want HETZNER_TOKEN", got)
	}
}

func TestIsImplemented(t *testing.T) {
	if !TypeHetzner.IsImplemented() {
		t.Error("hetzner should be implemented")
	}
	if TypeDigitalOcean.IsImplemented() {
		t.Error("digitalocean should not be implemented in this build")
	}
	if TypeAWS.IsImplemented() {
		t.Error("aws should not be implemented in this build")
	}
}
