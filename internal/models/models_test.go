package models

import (
	"errors"
	"testing"
)

func TestReplyValidate(t *testing.T) {
	cases := []struct {
		name  string
		reply Reply
		want  error
	}{
		{"plain text", TextReply("Bonjour"), nil},
		{"empty text", TextReply("   "), ErrEmptyReply},
		{"three choices", ChoiceReply("Choisissez", "A", "B", "C"), nil},
		{"too many choices", ChoiceReply("Choisissez", "A", "B", "C", "D"), ErrTooManyChoices},
	}
	for _, c := range cases {
		if err := c.reply.Validate(); !errors.Is(err, c.want) {
			t.Errorf("%s: Validate() = %v, want %v", c.name, err, c.want)
		}
	}
}

func TestListingResolve(t *testing.T) {
	l := &Listing{Kind: "mission", IDs: []string{"a", "b"}, Labels: []string{"A", "B"}}
	id, label, ok := l.Resolve(2)
	if !ok || id != "b" || label != "B" {
		t.Errorf("Resolve(2) = (%q, %q, %v)", id, label, ok)
	}
	for _, n := range []int{0, 3, -1} {
		if _, _, ok := l.Resolve(n); ok {
			t.Errorf("Resolve(%d) should fail", n)
		}
	}
}

func TestSessionRememberTurnBoundsHistory(t *testing.T) {
	s := NewSession("22507000001")
	for i := 0; i < MaxHistoryTurns+5; i++ {
		s.Context.RememberTurn("user", "bonjour")
	}
	if len(s.Context.History) != MaxHistoryTurns {
		t.Errorf("history length = %d, want %d", len(s.Context.History), MaxHistoryTurns)
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range []Role{RoleClient, RoleCourier, RoleMerchant} {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("admin") {
		t.Error("unknown role should be invalid")
	}
}
