package security

import "testing"

func TestDeriveFingerprint_Deterministic(t *testing.T) {
	a := DeriveFingerprint("", "Mozilla/5.0 (X11; Linux x86_64)")
	b := DeriveFingerprint("", "  mozilla/5.0   (x11; linux x86_64) ")
	if a == "" {
		t.Fatal("fingerprint should not be empty")
	}
	if a != b {
		t.Error("user agents differing only in case and spacing should share a fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestDeriveFingerprint_HintWins(t *testing.T) {
	withHint := DeriveFingerprint("device-123", "curl/8.0")
	otherUA := DeriveFingerprint("device-123", "Mozilla/5.0")
	if withHint != otherUA {
		t.Error("device hint should determine the fingerprint regardless of user agent")
	}
	if withHint == DeriveFingerprint("", "curl/8.0") {
		t.Error("hint and user-agent fingerprints should not collide")
	}
}

func TestDeriveFingerprint_Empty(t *testing.T) {
	if got := DeriveFingerprint(" ", ""); got != "" {
		t.Errorf("DeriveFingerprint of blanks = %q, want empty", got)
	}
}
