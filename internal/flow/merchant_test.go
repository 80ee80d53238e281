package flow

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/livreo/livreo/internal/models"
)

func TestMerchantBoutiqueLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice@boutique.ci" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "shop-token", "refresh_token": "shop-refresh"})
	})

	e := NewMerchantEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleMerchant)

	reply := handleOrFail(t, e, s, "connexion boutique")
	if s.Step != models.StepMerchantEmail || !strings.Contains(reply.Text, "e-mail") {
		t.Fatalf("step=%v reply=%q", s.Step, reply.Text)
	}

	reply = handleOrFail(t, e, s, "pas une adresse")
	if !strings.Contains(reply.Text, "ne semble pas valide") {
		t.Errorf("bad email should re-prompt, got %q", reply.Text)
	}

	handleOrFail(t, e, s, "alice@boutique.ci")
	if s.Step != models.StepMerchantPassword {
		t.Fatalf("step = %v, want password", s.Step)
	}

	reply = handleOrFail(t, e, s, "s3cret")
	if s.Context.MerchantToken != "shop-token" {
		t.Errorf("MerchantToken = %q, want shop-token", s.Context.MerchantToken)
	}
	if s.Step != models.StepMerchantMenu || s.Draft != nil {
		t.Errorf("step=%v draft=%v after login", s.Step, s.Draft)
	}
	if !strings.Contains(reply.Text, "boutique est ouverte") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestMerchantWrongPasswordRestartsAtEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	e := NewMerchantEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleMerchant)
	s.Step = models.StepMerchantPassword
	s.Draft = &models.Draft{}
	s.Draft.Set(merchantFieldEmail, "alice@boutique.ci")

	reply := handleOrFail(t, e, s, "mauvais")
	if s.Step != models.StepMerchantEmail {
		t.Errorf("step = %v, want email", s.Step)
	}
	if !strings.Contains(reply.Text, "incorrect") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Context.MerchantToken != "" {
		t.Error("no token should be stored on a rejected login")
	}
}

// backOfficeSession returns a merchant session already inside the back office.
func backOfficeSession() *models.Session {
	s := authedSession(models.RoleMerchant)
	s.Context.MerchantToken = "shop-token"
	s.Step = models.StepMerchantMenu
	return s
}

func TestMerchantOrderConfirm(t *testing.T) {
	confirmCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/marketplace/commandes", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); !strings.Contains(got, "shop-token") {
			t.Errorf("orders call must carry the back-office token, got %q", got)
		}
		if got := r.URL.Query().Get("statut"); got != "en_attente" {
			t.Errorf("statut filter = %q, want en_attente", got)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "o1", "produit_id": "p1", "produit": "Poulet braisé", "quantite": 2, "total": 9000, "statut": "en_attente"},
		})
	})
	mux.HandleFunc("/marketplace/commandes/o1/confirm", func(w http.ResponseWriter, r *http.Request) { confirmCalls++ })

	e := NewMerchantEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := backOfficeSession()

	handleOrFail(t, e, s, "commandes")
	reply := handleOrFail(t, e, s, "en attente")
	if !strings.Contains(reply.Text, "Poulet braisé ×2") || !strings.Contains(reply.Text, "9000 F") {
		t.Fatalf("order listing = %q", reply.Text)
	}

	reply = handleOrFail(t, e, s, "1")
	if s.Step != models.StepMerchantOrderAction || s.Context.OrderID != "o1" {
		t.Fatalf("selection did not open the order, step=%v order=%q", s.Step, s.Context.OrderID)
	}

	reply = handleOrFail(t, e, s, "confirmer")
	if confirmCalls != 1 {
		t.Fatalf("confirm called %d times, want 1", confirmCalls)
	}
	if !strings.Contains(reply.Text, "confirmée") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Context.OrderID != "" || s.Context.Listing != nil {
		t.Error("order id and listing should be cleared after confirm")
	}
}

func TestMerchantOrderCancelRequiresReason(t *testing.T) {
	var gotReason string
	mux := http.NewServeMux()
	mux.HandleFunc("/marketplace/commandes/o1/cancel", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotReason = body["motif"]
	})

	e := NewMerchantEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := backOfficeSession()
	s.Step = models.StepMerchantOrderAction
	s.Context.OrderID = "o1"

	reply := handleOrFail(t, e, s, "annuler")
	if s.Step != models.StepMerchantCancelReason || !strings.Contains(reply.Text, "motif") {
		t.Fatalf("step=%v reply=%q", s.Step, reply.Text)
	}

	reply = handleOrFail(t, e, s, "rupture de stock")
	if gotReason != "rupture de stock" {
		t.Errorf("motif = %q", gotReason)
	}
	if !strings.Contains(reply.Text, "annulée") || s.Step != models.StepMerchantOrderStatus {
		t.Errorf("reply=%q step=%v", reply.Text, s.Step)
	}
}

func TestMerchantProductAddWizard(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/marketplace/produits", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			json.NewEncoder(w).Encode([]map[string]any{})
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["nom"] != "Alloco" || body["prix"] != float64(1500) || body["stock"] != float64(20) {
			t.Errorf("product payload = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "p9", "nom": "Alloco", "prix": 1500, "stock": 20})
	})

	e := NewMerchantEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := backOfficeSession()

	handleOrFail(t, e, s, "produits")
	handleOrFail(t, e, s, "ajouter")
	if s.Step != models.StepMerchantProductName {
		t.Fatalf("step = %v, want product name", s.Step)
	}
	handleOrFail(t, e, s, "Alloco")
	handleOrFail(t, e, s, "1500")
	reply := handleOrFail(t, e, s, "20")

	if !strings.Contains(reply.Text, "Alloco") || !strings.Contains(reply.Text, "ajouté") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Step != models.StepMerchantProducts || s.Draft != nil {
		t.Errorf("step=%v draft=%v after create", s.Step, s.Draft)
	}
}

func TestMerchantStockUpdate(t *testing.T) {
	var gotStock int
	mux := http.NewServeMux()
	mux.HandleFunc("/marketplace/produits", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"id": "p1", "nom": "Alloco", "prix": 1500, "stock": 3}})
	})
	mux.HandleFunc("/marketplace/produits/p1/update_stock", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		json.NewDecoder(r.Body).Decode(&body)
		gotStock = body["stock"]
	})

	e := NewMerchantEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := backOfficeSession()
	s.Step = models.StepMerchantProducts

	handleOrFail(t, e, s, "stock")
	if s.Step != models.StepMerchantProductPick {
		t.Fatalf("step = %v, want product pick", s.Step)
	}
	handleOrFail(t, e, s, "1")
	if s.Step != models.StepMerchantProductNewStock {
		t.Fatalf("step = %v, want new stock", s.Step)
	}
	reply := handleOrFail(t, e, s, "50")
	if gotStock != 50 {
		t.Errorf("stock pushed = %d, want 50", gotStock)
	}
	if !strings.Contains(reply.Text, "mis à jour") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestMerchantCatalogListingKindIsDistinct(t *testing.T) {
	// The back-office catalogue and the marketplace product listing coexist in
	// the same session context, so their kinds must never collide.
	if listingCatalog == listingProducts {
		t.Fatalf("catalogue listing kind %q collides with the marketplace product kind", listingCatalog)
	}

	e := NewMerchantEngine(newTestPlatform(t, http.NewServeMux()), &fakeClassifier{})
	s := backOfficeSession()
	s.Step = models.StepMerchantProductPick
	s.Draft = &models.Draft{}
	s.Draft.Set(merchantFieldAction, "stock")
	s.Context.Listing = &models.Listing{Kind: listingProducts, IDs: []string{"p1"}, Labels: []string{"Attiéké"}}

	reply := handleOrFail(t, e, s, "1")
	if !strings.Contains(reply.Text, "Choix invalide") {
		t.Errorf("reply = %q, want an invalid-selection re-prompt", reply.Text)
	}
	if s.Draft.ProductID != "" {
		t.Errorf("marketplace listing resolved to catalogue product %q", s.Draft.ProductID)
	}
}

func TestMerchantExpiredBackOfficeTokenDemotes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/marketplace/commandes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	e := NewMerchantEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := backOfficeSession()
	s.Step = models.StepMerchantOrderStatus

	// The back-office token has no refresh token, so a 401 is terminal and the
	// session drops back to the welcome step.
	reply := handleOrFail(t, e, s, "en attente")
	if !strings.Contains(reply.Text, "session a expiré") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Step != models.StepWelcome {
		t.Errorf("step = %v, want welcome", s.Step)
	}
	// The dead token must not survive the demotion, or a re-login would be
	// routed straight back into the back office and expire again.
	if s.Context.MerchantToken != "" {
		t.Errorf("MerchantToken = %q, want cleared", s.Context.MerchantToken)
	}
}
