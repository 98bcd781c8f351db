package provider

import (
	"testing"
	"time"
)

func TestAuthErrorDisplay(t *testing.T) {
	err := NewAuthError("digitalocean", "Invalid token")
	want := "authentication failed for digitalocean: Invalid token"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNotFoundErrorDisplay(t *testing.T) {
	err := NewNotFoundError("instance", "123456")
	want := "instance not found: 123456"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRateLimitWithRetry(t *testing.T) {
	err := NewRateLimitError(60*time.Second, true)
	if !err.IsRetryable() {
		t.Error("expected rate limit error to be retryable")
	}
	d, ok := err.RetryAfter()
	if !ok || d != 60*time.Second {
		t.Errorf("RetryAfter() = %v, %v; want 60s, true", d, ok)
	}
}

func TestRateLimitWithoutRetry(t *testing.T) {
	err := NewRateLimitError(0, false)
	want := "rate limit exceeded"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAPIErrorNotRetryable(t *testing.T) {
	err := NewAPIError(401, "Unauthorized")
	want := "api error (401): Unauthorized"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if err.IsRetryable() {
		t.Error("api error should not be retryable")
	}
}

func TestTimeoutErrorRetryable(t *testing.T) {
	err := NewTimeoutError("wait_ready", 300*time.Second)
	if !err.IsRetryable() {
		t.Error("timeout error should be retryable")
	}
	d, ok := err.RetryAfter()
	if !ok || d != 5*time.Second {
		t.Errorf("RetryAfter() = %v, %v; want 5s, true", d, ok)
	}
}

func TestIsRetryableMatrix(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want bool
	}{
		{"rate limit", NewRateLimitError(0, false), true},
		{"timeout", NewTimeoutError("test", time.Second), true},
		{"network", NewNetworkError(nil), true},
		{"auth", NewAuthError("test", "bad token"), false},
		{"not found", NewNotFoundError("instance", "123"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.IsRetryable(); got != tc.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUnknownProviderError(t *testing.T) {
	err := NewUnknownProviderError("openstack", []string{"digitalocean", "hetzner", "aws"})
	if err.Kind != KindUnknownProvider {
		t.Errorf("Kind = %v, want KindUnknownProvider", err.Kind)
	}
}
