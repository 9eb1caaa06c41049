package procid

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Spotify.exe":   "spotify.exe",
		"  CHROME.EXE ": "chrome.exe",
		"":              "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSystemService(t *testing.T) {
	if !IsSystemService("audiodg.exe") {
		t.Error("audiodg.exe should be a system service")
	}
	if !IsSystemService("AudioDg.EXE") {
		t.Error("matching should be case-insensitive")
	}
	if IsSystemService("spotify.exe") {
		t.Error("spotify.exe should not be a system service")
	}
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder(4242)
	if p != "Process 4242" {
		t.Errorf("Placeholder(4242) = %q", p)
	}
	if !IsPlaceholder(p) {
		t.Errorf("IsPlaceholder(%q) = false", p)
	}
	if IsPlaceholder("explorer.exe") {
		t.Error("explorer.exe flagged as placeholder")
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(0, ""); got != SystemSounds {
		t.Errorf("pid 0 should map to %q, got %q", SystemSounds, got)
	}
	if got := DisplayName(1234, "audiodg.exe"); got != SystemSounds {
		t.Errorf("system service should map to %q, got %q", SystemSounds, got)
	}
	if got := DisplayName(1234, Placeholder(1234)); got != SystemSounds {
		t.Errorf("placeholder should map to %q, got %q", SystemSounds, got)
	}
	if got := DisplayName(1234, "chrome.exe"); got != "chrome.exe" {
		t.Errorf("ordinary name should pass through, got %q", got)
	}
}
