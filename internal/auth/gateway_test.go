package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

func newTestGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := platform.NewClient(platform.WithBaseURL(srv.URL), platform.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("platform.NewClient: %v", err)
	}
	return NewGateway(c)
}

func send(t *testing.T, g *Gateway, s *models.Session, text string) models.Reply {
	t.Helper()
	reply, err := g.Handle(context.Background(), s, models.Message{From: s.ID, Text: text})
	if err != nil {
		t.Fatalf("Handle(%q) error: %v", text, err)
	}
	return reply
}

func TestGatewayOwnsOnlyUnauthenticatedSessions(t *testing.T) {
	g := newTestGateway(t, http.NewServeMux())
	s := models.NewSession("22507000001")
	if !g.Owns(s) {
		t.Error("fresh session should belong to the gateway")
	}
	s.Auth.AccessToken = "tok"
	if g.Owns(s) {
		t.Error("authenticated session should not belong to the gateway")
	}
}

func TestGatewayFirstContactShowsWelcome(t *testing.T) {
	g := newTestGateway(t, http.NewServeMux())
	s := models.NewSession("22507000001")

	reply := send(t, g, s, "bonjour")
	if !strings.Contains(reply.Text, "Bienvenue chez Livreo") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Step != models.StepWelcomeChoice {
		t.Errorf("step = %v, want welcome choice", s.Step)
	}
	if len(reply.Choices) != 3 {
		t.Errorf("choices = %v, want Connexion/Inscription/Aide", reply.Choices)
	}
}

func TestGatewayLoginWrongPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	g := newTestGateway(t, mux)
	s := models.NewSession("22507000001")
	s.Step = models.StepLoginPassword

	reply := send(t, g, s, "mauvais")
	if !strings.Contains(reply.Text, "Mot de passe incorrect") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Step != models.StepWelcomeChoice {
		t.Errorf("step = %v, want welcome choice", s.Step)
	}
	if s.Authenticated() {
		t.Error("session must stay unauthenticated")
	}
}

func TestGatewayLoginResolvesRoleAndDisplayName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "22507000001" {
			t.Errorf("login username = %q, want the session phone number", body["username"])
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "at", "refresh_token": "rt"})
	})
	// No explicit role in the login response: the gateway probes the profile
	// endpoints. Only the courier one answers.
	mux.HandleFunc("/auth/clients/my_profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/auth/couriers/my_profile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "u1", "nom_complet": "Sékou Diabaté"})
	})

	g := newTestGateway(t, mux)
	s := models.NewSession("22507000001")
	s.Step = models.StepLoginPassword

	reply := send(t, g, s, "s3cret!")
	if !s.Authenticated() || s.Auth.AccessToken != "at" {
		t.Fatal("login should store the token pair")
	}
	if s.User.Role != models.RoleCourier {
		t.Errorf("role = %q, want courier", s.User.Role)
	}
	if s.User.DisplayName != "Sékou Diabaté" {
		t.Errorf("display name = %q", s.User.DisplayName)
	}
	if s.Step != models.StepRoleMenu {
		t.Errorf("step = %v, want role menu", s.Step)
	}
	if !strings.Contains(reply.Text, "Sékou Diabaté") {
		t.Errorf("menu should greet by name: %q", reply.Text)
	}
}

func TestGatewaySignupWizardBackNavigation(t *testing.T) {
	g := newTestGateway(t, http.NewServeMux())
	s := models.NewSession("22507000001")
	s.Step = models.StepWelcomeChoice

	send(t, g, s, "inscription")
	if s.Step != models.StepSignupRole {
		t.Fatalf("step = %v, want role selection", s.Step)
	}

	reply := send(t, g, s, "client")
	if s.Step != models.StepSignupName || !strings.Contains(reply.Text, "nom complet") {
		t.Fatalf("step=%v reply=%q", s.Step, reply.Text)
	}

	send(t, g, s, "Awa Touré")
	if s.Step != models.StepSignupEmail {
		t.Fatalf("step = %v, want email", s.Step)
	}

	// Back from the second field re-prompts the first, keeping the draft.
	reply = send(t, g, s, "retour")
	if s.Step != models.StepSignupName || !strings.Contains(reply.Text, "nom complet") {
		t.Errorf("back: step=%v reply=%q", s.Step, reply.Text)
	}
	if s.Draft.Field("nom_complet") != "Awa Touré" {
		t.Error("back must not discard collected fields")
	}

	// Back at the first field returns to the role selection.
	reply = send(t, g, s, "retour")
	if s.Step != models.StepSignupRole || !strings.Contains(reply.Text, "Vous êtes") {
		t.Errorf("back to role: step=%v reply=%q", s.Step, reply.Text)
	}
}

func TestGatewaySignupRejectsInvalidEmail(t *testing.T) {
	g := newTestGateway(t, http.NewServeMux())
	s := models.NewSession("22507000001")
	s.Step = models.StepSignupEmail
	s.Draft = &models.Draft{SignupRole: models.RoleClient}

	reply := send(t, g, s, "pas une adresse")
	if !strings.Contains(reply.Text, "ne semble pas valide") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Step != models.StepSignupEmail {
		t.Errorf("step = %v, want email unchanged", s.Step)
	}
}

func TestGatewaySignupCompletionAutoLogin(t *testing.T) {
	signupCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/clients", func(w http.ResponseWriter, r *http.Request) {
		signupCalls++
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["nom_complet"] != "Awa Touré" || body["password"] != "motdepasse" {
			t.Errorf("signup payload = %v", body)
		}
		if body["telephone"] != "22507000001" {
			t.Errorf("telephone should default to the session id, got %q", body["telephone"])
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "at", "refresh_token": "rt", "role": "client"})
	})
	mux.HandleFunc("/auth/clients/my_profile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "u1", "prenom": "Awa", "nom": "Touré"})
	})

	g := newTestGateway(t, mux)
	s := models.NewSession("22507000001")
	s.Step = models.StepSignupPassword
	s.Draft = &models.Draft{SignupRole: models.RoleClient}
	s.Draft.Set("nom_complet", "Awa Touré")
	s.Draft.Set("email", "awa@exemple.ci")
	s.Draft.Set("adresse", "Cocody")

	// A short password is rejected before any call.
	reply := send(t, g, s, "abc")
	if signupCalls != 0 || !strings.Contains(reply.Text, "trop court") {
		t.Fatalf("short password: calls=%d reply=%q", signupCalls, reply.Text)
	}

	reply = send(t, g, s, "motdepasse")
	if signupCalls != 1 {
		t.Fatalf("signup called %d times, want 1", signupCalls)
	}
	if !s.Authenticated() || s.Step != models.StepRoleMenu {
		t.Errorf("auto-login should land on the role menu, step=%v", s.Step)
	}
	if s.User.DisplayName != "Awa Touré" {
		t.Errorf("display name = %q", s.User.DisplayName)
	}
	if !strings.Contains(reply.Text, "Awa Touré") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestGatewaySignupFieldRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/clients", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"message": "validation",
			"errors":  map[string]string{"email": "déjà utilisée"},
		})
	})

	g := newTestGateway(t, mux)
	s := models.NewSession("22507000001")
	s.Step = models.StepSignupPassword
	s.Draft = &models.Draft{SignupRole: models.RoleClient}
	s.Draft.Set("nom_complet", "Awa Touré")
	s.Draft.Set("email", "awa@exemple.ci")

	reply := send(t, g, s, "motdepasse")
	if !strings.Contains(reply.Text, "refusée") || !strings.Contains(reply.Text, "email : déjà utilisée") {
		t.Errorf("reply = %q", reply.Text)
	}
	if s.Step != models.StepSignupName {
		t.Errorf("step = %v, want restart at the first field", s.Step)
	}
	if s.Draft.Field("nom_complet") != "Awa Touré" {
		t.Error("rejection must keep the draft")
	}
}
