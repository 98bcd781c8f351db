package sshconn

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestTargetHostport(t *testing.T) {
	tgt := Target{IP: "10.0.0.5"}
	if got := tgt.hostport(); got != "10.0.0.5:22" {
		t.Errorf("hostport() = %q, want 10.0.0.5:22", got)
	}
	tgt.Port = 2222
	if got := tgt.hostport(); got != "10.0.0.5:2222" {
		t.Errorf("hostport() = %q, want 10.0.0.5:2222", got)
	}
}

func TestTargetUserHost(t *testing.T) {
	tgt := Target{IP: "10.0.0.5", User: "dev"}
	if got := tgt.userHost(); got != "dev@10.0.0.5" {
		t.Errorf("userHost() = %q, want dev@10.0.0.5", got)
	}
}

func TestBaseSSHArgsIncludesKeyAndPort(t *testing.T) {
	tgt := Target{IP: "10.0.0.5", User: "dev", Port: 2222, KeyPath: "/home/dev/.ssh/spuff_id"}
	args := tgt.baseSSHArgs()

	found := map[string]bool{}
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			found["key"] = args[i+1] == tgt.KeyPath
		}
		if a == "-p" && i+1 < len(args) {
			found["port"] = args[i+1] == "2222"
		}
		if a == "BatchMode=yes" {
			found["batch"] = true
		}
	}
	for _, want := range []string{"key", "port", "batch"} {
		if !found[want] {
			t.Errorf("baseSSHArgs() missing expected %s option: %v", want, args)
		}
	}
}

func TestBaseSSHArgsOmitsPortFlagForDefault(t *testing.T) {
	tgt := Target{IP: "10.0.0.5", User: "dev"}
	args := tgt.baseSSHArgs()
	for _, a := range args {
		if a == "-p" {
			t.Errorf("baseSSHArgs() should omit -p for default port, got %v", args)
		}
	}
}

func TestClassifyLoginErrorPassphrase(t *testing.T) {
	err := classifyLoginError(errors.New("exit status 255"), "Enter passphrase for key '/home/dev/.ssh/id_ed25519': ")
	if !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("classifyLoginError() = %v, want ErrPassphraseRequired", err)
	}
}

func TestClassifyLoginErrorPermissionDenied(t *testing.T) {
	err := classifyLoginError(errors.New("exit status 255"), "Permission denied (publickey).")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("classifyLoginError() = %v, want ErrPermissionDenied", err)
	}
}

func TestClassifyLoginErrorOther(t *testing.T) {
	wrapped := errors.New("exit status 255")
	err := classifyLoginError(wrapped, "ssh: connect to host 10.0.0.5 port 22: Connection refused")
	if !errors.Is(err, wrapped) {
		t.Errorf("classifyLoginError() = %v, want passthrough of %v", err, wrapped)
	}
}

func TestWaitTCPSucceedsOnOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	tgt := Target{IP: host, Port: port}
	if err := WaitTCP(context.Background(), tgt, 2*time.Second); err != nil {
		t.Errorf("WaitTCP() = %v, want nil", err)
	}
}

func TestWaitTCPTimesOutOnClosedPort(t *testing.T) {
	tgt := Target{IP: "127.0.0.1", Port: 1}
	err := WaitTCP(context.Background(), tgt, 1500*time.Millisecond)
	if err == nil {
		t.Error("WaitTCP() = nil, want timeout error")
	}
}
