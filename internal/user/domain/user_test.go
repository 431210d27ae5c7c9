package domain

import "testing"

func TestUser_Validate(t *testing.T) {
	u := &User{ID: "u1"}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Status != UserStatusActive {
		t.Errorf("Status = %q, want active default", u.Status)
	}
	if err := (&User{}).Validate(); err == nil {
		t.Error("user without id should be invalid")
	}
	if err := (&User{ID: "u1", Status: "banned"}).Validate(); err == nil {
		t.Error("unknown status should be invalid")
	}
}

func TestUser_Active(t *testing.T) {
	var nilUser *User
	if nilUser.Active() {
		t.Error("nil user is not active")
	}
	if !(&User{Status: UserStatusActive}).Active() {
		t.Error("active user should be active")
	}
	if (&User{Status: UserStatusSuspended}).Active() {
		t.Error("suspended user should not be active")
	}
}
