package version

import "testing"

func TestGet(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "1.2.3"

	info := Get()
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", info.Version)
	}
	if got, want := info.String(), "1.2.3 (unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
