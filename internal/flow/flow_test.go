package flow

import (
	"strings"
	"testing"

	"github.com/livreo/livreo/internal/models"
)

func TestParseSelection(t *testing.T) {
	cases := []struct {
		input string
		want  int
		ok    bool
	}{
		{"1", 1, true},
		{"5", 5, true},
		{"0", 0, false},
		{"-2", 0, false},
		{"deux", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseSelection(c.input)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseSelection(%q) = (%d, %v), want (%d, %v)", c.input, got, ok, c.want, c.ok)
		}
	}
}

func TestConfirmVocabulary(t *testing.T) {
	for _, w := range []string{"confirmer", "oui", "ok", "valider"} {
		if !IsConfirm(w) {
			t.Errorf("IsConfirm(%q) = false", w)
		}
	}
	if IsConfirm("confirmation totale") {
		t.Error("IsConfirm should match whole words only")
	}
	if !IsCancel("annuler") || !IsModify("modifier") || !IsBack("retour") {
		t.Error("cancel/modify/back vocabulary broken")
	}
}

func TestRenderListingCapsRowsAndReplacesPrevious(t *testing.T) {
	s := models.NewSession("22507000001")
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	labels := []string{"A", "B", "C", "D", "E", "F", "G"}

	reply := RenderListing(s, "product", "Produits :", ids, labels, nil)
	if len(s.Context.Listing.IDs) != models.MaxListRows {
		t.Errorf("listing rows = %d, want %d", len(s.Context.Listing.IDs), models.MaxListRows)
	}
	if strings.Contains(reply.Text, "6.") {
		t.Error("reply text lists more rows than the cap")
	}

	// A second render replaces the mapping entirely.
	RenderListing(s, "merchant", "Marchands :", []string{"m1"}, []string{"Chez Tante"}, nil)
	if s.Context.Listing.Kind != "merchant" || len(s.Context.Listing.IDs) != 1 {
		t.Errorf("listing not replaced: %+v", s.Context.Listing)
	}
}

func TestResolveListingRejectsStaleKind(t *testing.T) {
	s := models.NewSession("22507000001")
	RenderListing(s, "category", "Catégories :", []string{"c1", "c2"}, []string{"Repas", "Courses"}, nil)

	if _, _, ok := ResolveListing(s, "product", 1); ok {
		t.Error("selection against a listing of another kind must not resolve")
	}
	id, label, ok := ResolveListing(s, "category", 2)
	if !ok || id != "c2" || label != "Courses" {
		t.Errorf("ResolveListing = (%q, %q, %v)", id, label, ok)
	}
	if _, _, ok := ResolveListing(s, "category", 3); ok {
		t.Error("out-of-range selection must not resolve")
	}
}

func TestMenuReplyPerRole(t *testing.T) {
	s := authedSession(models.RoleCourier)
	if reply := MenuReply(s); !strings.Contains(reply.Text, "missions") {
		t.Errorf("courier menu = %q", reply.Text)
	}
	s = authedSession(models.RoleMerchant)
	if reply := MenuReply(s); !strings.Contains(reply.Text, "marchand") {
		t.Errorf("merchant menu = %q", reply.Text)
	}
	s = authedSession(models.RoleClient)
	reply := MenuReply(s)
	if !strings.Contains(reply.Text, "Awa") {
		t.Errorf("client menu should greet by display name, got %q", reply.Text)
	}
	if len(reply.Choices) == 0 {
		t.Error("client menu should offer choices")
	}
}
