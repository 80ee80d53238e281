package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livreo/livreo/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func TestLoginSuccess(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "22507000001" {
			t.Errorf("username = %q", body["username"])
		}
		json.NewEncoder(w).Encode(LoginResult{AccessToken: "acc", RefreshToken: "ref", Role: "client"})
	}))

	result, err := c.Login(context.Background(), "22507000001", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.AccessToken != "acc" || result.Role != "client" {
		t.Errorf("unexpected login result: %+v", result)
	}
}

func TestLoginRejectedIsAuthError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Login(context.Background(), "22507000001", "wrong")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Login error = %v, want AuthError", err)
	}
}

func TestExpiredTokenRefreshedExactlyOnce(t *testing.T) {
	var missionCalls, refreshCalls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missions/available":
			missionCalls++
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode([]Mission{{ID: "m1"}})
		case "/auth/refresh":
			refreshCalls++
			json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	auth := models.Auth{AccessToken: "stale", RefreshToken: "ref"}
	missions, err := c.AvailableMissions(context.Background(), &auth)
	if err != nil {
		t.Fatalf("AvailableMissions: %v", err)
	}
	if len(missions) != 1 || missions[0].ID != "m1" {
		t.Errorf("missions = %+v", missions)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if missionCalls != 2 {
		t.Errorf("mission calls = %d, want 2 (stale then fresh)", missionCalls)
	}
	if auth.AccessToken != "fresh" {
		t.Errorf("access token = %q, want refreshed token", auth.AccessToken)
	}
}

func TestSecondUnauthorizedAfterRefreshIsAuthError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "still-bad"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))

	auth := models.Auth{AccessToken: "stale", RefreshToken: "ref"}
	_, err := c.MyMissions(context.Background(), &auth)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
}

func TestFailedRefreshClearsTokens(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	auth := models.Auth{AccessToken: "stale", RefreshToken: "dead"}
	_, err := c.MyMissions(context.Background(), &auth)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if auth.AccessToken != "" || auth.RefreshToken != "" {
		t.Error("failed refresh should clear both tokens")
	}
}

func TestAcceptMissionConflict(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "mission déjà prise"})
	}))

	auth := models.Auth{AccessToken: "tok"}
	err := c.AcceptMission(context.Background(), &auth, "m1")
	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	if conflictErr.Message != "mission déjà prise" {
		t.Errorf("message = %q", conflictErr.Message)
	}
}

func TestSignupFieldErrors(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"message": "validation",
			"errors":  map[string]string{"email": "déjà utilisé"},
		})
	}))

	err := c.Signup(context.Background(), models.RoleClient, map[string]string{"email": "a@b.c"}, "secret99")
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	if remoteErr.Fields["email"] != "déjà utilisé" {
		t.Errorf("fields = %+v", remoteErr.Fields)
	}
}
