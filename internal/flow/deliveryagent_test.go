package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

func TestAgentAvailabilityToggle(t *testing.T) {
	var lastAvailable *bool
	mux := http.NewServeMux()
	mux.HandleFunc("/couriers/availability", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]bool
		json.NewDecoder(r.Body).Decode(&body)
		v := body["disponible"]
		lastAvailable = &v
	})

	e := NewAgentEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleCourier)

	reply := handleOrFail(t, e, s, "dispo")
	if lastAvailable == nil || !*lastAvailable || !s.Context.Available {
		t.Fatal("dispo should push disponible=true")
	}
	if !strings.Contains(reply.Text, "en ligne") {
		t.Errorf("reply = %q", reply.Text)
	}

	handleOrFail(t, e, s, "indispo")
	if *lastAvailable || s.Context.Available {
		t.Error("indispo should push disponible=false")
	}
}

func TestAgentAvailableMissionsAnnotatedWithDistance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missions/available", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "M-1", "lieu_retrait": "Plateau", "lieu_livraison": "Cocody", "valeur_declaree": 8000, "statut": "en_attente", "retrait_lat": 5.32, "retrait_lng": -4.02},
		})
	})

	e := NewAgentEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleCourier)
	s.Context.Location = &models.Coordinates{Latitude: 5.35, Longitude: -4.00}

	reply := handleOrFail(t, e, s, "missions")
	if !strings.Contains(reply.Text, "Plateau → Cocody") {
		t.Errorf("mission row missing route: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "km") || !strings.Contains(reply.Text, "min") {
		t.Errorf("mission row missing distance/ETA annotation: %q", reply.Text)
	}
	if s.Context.Listing == nil || s.Context.Listing.Kind != listingAvailable {
		t.Error("missions should render an available-mission listing")
	}
}

func TestAgentMissionsWithoutLocationShowValueOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missions/available", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "M-1", "lieu_retrait": "Plateau", "lieu_livraison": "Cocody", "valeur_declaree": 8000, "statut": "en_attente"},
		})
	})

	e := NewAgentEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleCourier)

	reply := handleOrFail(t, e, s, "missions")
	if !strings.Contains(reply.Text, "8000 F") {
		t.Errorf("mission row missing value: %q", reply.Text)
	}
	if strings.Contains(reply.Text, "km") {
		t.Errorf("no position shared, row should not carry a distance: %q", reply.Text)
	}
}

func TestAgentAcceptMission(t *testing.T) {
	acceptCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/missions/M-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "M-1", "lieu_retrait": "Plateau", "lieu_livraison": "Cocody",
			"nom_destinataire": "Aya", "tel_destinataire": "07", "valeur_declaree": 8000, "statut": "en_attente",
		})
	})
	mux.HandleFunc("/missions/M-1/accept", func(w http.ResponseWriter, r *http.Request) { acceptCalls++ })

	e := NewAgentEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleCourier)
	s.Context.Listing = &models.Listing{Kind: listingAvailable, IDs: []string{"M-1"}, Labels: []string{"Plateau → Cocody"}}

	reply := handleOrFail(t, e, s, "1")
	if s.Step != models.StepAgentMissionDetail || s.Context.MissionID != "M-1" {
		t.Fatalf("selection did not open the mission, step=%v mission=%q", s.Step, s.Context.MissionID)
	}
	if len(reply.Choices) == 0 || reply.Choices[0] != "Accepter" {
		t.Fatalf("pending mission should offer Accepter first, got %v", reply.Choices)
	}

	reply = handleOrFail(t, e, s, "accepter")
	if acceptCalls != 1 {
		t.Fatalf("accept called %d times, want 1", acceptCalls)
	}
	if !strings.Contains(reply.Text, "M-1") || s.Context.Phase != models.PhasePickup {
		t.Errorf("accept reply = %q phase = %q", reply.Text, s.Context.Phase)
	}
}

func TestAgentAcceptConflictIsFriendly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missions/M-1/accept", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "mission déjà prise"})
	})

	e := NewAgentEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleCourier)
	s.Step = models.StepAgentMissionDetail
	s.Context.MissionID = "M-1"

	reply := handleOrFail(t, e, s, "accepter")
	if !strings.Contains(reply.Text, "passé avant vous") {
		t.Errorf("conflict reply = %q", reply.Text)
	}
}

func TestAgentStatusProgressionToDelivered(t *testing.T) {
	var pushed []string
	mux := http.NewServeMux()
	mux.HandleFunc("/deliveries/M-1/update_statut", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		pushed = append(pushed, body["statut"])
	})

	e := NewAgentEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleCourier)
	s.Step = models.StepAgentMissionDetail
	s.Context.MissionID = "M-1"
	s.Context.Phase = models.PhasePickup

	handleOrFail(t, e, s, "démarrer")
	handleOrFail(t, e, s, "arrive au retrait")
	handleOrFail(t, e, s, "colis récupéré")
	if s.Context.Phase != models.PhaseDelivery {
		t.Errorf("phase after pickup = %q, want delivery leg", s.Context.Phase)
	}
	handleOrFail(t, e, s, "arrivé à la livraison")
	reply := handleOrFail(t, e, s, "livré")

	want := []string{
		platform.MissionStatusStarted,
		platform.MissionStatusAtPickup,
		platform.MissionStatusPickedUp,
		platform.MissionStatusAtDropoff,
		platform.MissionStatusDelivered,
	}
	if len(pushed) != len(want) {
		t.Fatalf("pushed statuses = %v, want %v", pushed, want)
	}
	for i := range want {
		if pushed[i] != want[i] {
			t.Errorf("status %d = %q, want %q", i, pushed[i], want[i])
		}
	}

	if !strings.Contains(reply.Text, "🎉") || !strings.Contains(reply.Text, "M-1") {
		t.Errorf("delivery reply = %q", reply.Text)
	}
	if s.Step != models.StepRoleMenu || s.Context.MissionID != "" {
		t.Errorf("delivered mission should close out, step=%v mission=%q", s.Step, s.Context.MissionID)
	}
}

func TestAgentUnknownStatusTokenListsValidValues(t *testing.T) {
	e := NewAgentEngine(newTestPlatform(t, http.NewServeMux()), &fakeClassifier{})
	s := authedSession(models.RoleCourier)

	reply := handleOrFail(t, e, s, "statut xyz")
	if !strings.Contains(reply.Text, "Statut inconnu") || !strings.Contains(reply.Text, platform.MissionStatusPickedUp) {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestAgentSharedPositionUpdatesActiveMission(t *testing.T) {
	var gotPhase string
	mux := http.NewServeMux()
	mux.HandleFunc("/deliveries/M-1/update_position", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotPhase, _ = body["phase"].(string)
	})

	e := NewAgentEngine(newTestPlatform(t, mux), &fakeClassifier{})
	s := authedSession(models.RoleCourier)
	s.Context.MissionID = "M-1"
	s.Context.Phase = models.PhaseDelivery

	reply, err := e.Handle(context.Background(), s, locationMsg(5.36, -4.01))
	if err != nil {
		t.Fatalf("Handle location: %v", err)
	}
	if gotPhase != string(models.PhaseDelivery) {
		t.Errorf("phase = %q, want %q", gotPhase, models.PhaseDelivery)
	}
	if !strings.Contains(reply.Text, "Position enregistrée") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Abidjan Plateau to Yamoussoukro, roughly 212 km.
	km := haversineKm(5.3252, -4.0217, 6.8276, -5.2893)
	if km < 200 || km > 225 {
		t.Errorf("haversineKm = %.1f, want ≈212", km)
	}
}
