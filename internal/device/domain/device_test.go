package domain

import (
	"testing"
	"time"
)

func TestDevice_LastActivity(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &Device{FirstLoginAt: first}
	if !d.LastActivity().Equal(first) {
		t.Errorf("LastActivity without LastLoginAt = %v, want %v", d.LastActivity(), first)
	}
	last := first.Add(time.Hour)
	d.LastLoginAt = &last
	if !d.LastActivity().Equal(last) {
		t.Errorf("LastActivity = %v, want %v", d.LastActivity(), last)
	}
}

func TestLogin_Validate(t *testing.T) {
	ok := Login{UserID: "u1", Fingerprint: "fp", At: time.Now()}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for name, l := range map[string]Login{
		"no user":        {Fingerprint: "fp", At: time.Now()},
		"no fingerprint": {UserID: "u1", At: time.Now()},
		"no time":        {UserID: "u1", Fingerprint: "fp"},
	} {
		if err := l.Validate(); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func TestClipAttribute(t *testing.T) {
	long := make([]byte, MaxAttributeLen+10)
	for i := range long {
		long[i] = 'a'
	}
	if got := ClipAttribute(string(long)); len(got) != MaxAttributeLen {
		t.Errorf("ClipAttribute length = %d, want %d", len(got), MaxAttributeLen)
	}
	multi := string(long[:MaxAttributeLen-1]) + "é"
	if got := ClipAttribute(multi); len(got) != MaxAttributeLen-1 {
		t.Errorf("ClipAttribute should not split a rune, got length %d", len(got))
	}
}
