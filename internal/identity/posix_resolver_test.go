package identity

import (
	"os/user"
	"testing"
)

func TestPosixResolver_Resolve_CurrentUser(t *testing.T) {
	current, err := user.Current()
	if err != nil {
		t.Skipf("os/user.Current unavailable in this environment: %v", err)
	}

	r := NewPosixResolver()
	profile, err := r.Resolve(current.Username)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if profile == nil {
		t.Skip("current user's home directory is not present in this sandbox")
	}

	if profile.HomeDirectory != current.HomeDir {
		t.Errorf("expected home directory %s, got %s", current.HomeDir, profile.HomeDirectory)
	}
}

func TestPosixResolver_Resolve_UnknownSid(t *testing.T) {
	r := NewPosixResolver()
	profile, err := r.Resolve("definitely-not-a-real-account-8274")
	if err != nil {
		t.Fatalf("expected unresolved identity to be nil,nil, got error: %v", err)
	}
	if profile != nil {
		t.Errorf("expected nil profile for unknown sid, got %+v", profile)
	}
}

func TestHeuristicHomeDir(t *testing.T) {
	home := heuristicHomeDir("alice")
	if home != "/home/alice" && home != "/Users/alice" {
		t.Errorf("unexpected heuristic home dir: %s", home)
	}
}
