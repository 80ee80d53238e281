package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/livreo/livreo/internal/classifier"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// Listing kinds rendered by the delivery agent flow.
const (
	listingAvailable  = "mission"
	listingMyMissions = "mymission"
)

// AverageSpeedKmh is the fixed speed used for the ETA estimate on mission rows.
const AverageSpeedKmh = 25.0

// AgentEngine serves the courier role: availability, mission listings, and
// the linear status progression of an accepted mission.
type AgentEngine struct {
	machine
	platform *platform.Client
}

// NewAgentEngine creates the delivery agent engine.
func NewAgentEngine(p *platform.Client, cls classifier.Classifier) *AgentEngine {
	e := &AgentEngine{platform: p}
	e.machine = machine{
		name: "agent",
		table: transitionTable{
			models.StepRoleMenu:           e.handleMenu,
			models.StepAgentMissionDetail: e.handleMissionDetail,
		},
		expects:  map[models.Step]classifier.FieldKind{},
		classify: cls,
	}
	return e
}

// Role implements Engine.
func (e *AgentEngine) Role() models.Role { return models.RoleCourier }

// Handle implements Engine.
func (e *AgentEngine) Handle(ctx context.Context, s *models.Session, msg models.Message) (models.Reply, error) {
	return e.machine.handle(ctx, s, NewInput(msg))
}

// statusProgression maps each mission status to the next action's label and
// target status. The progression is strictly linear.
var statusProgression = map[string]struct {
	Label string
	Next  string
}{
	platform.MissionStatusAccepted:  {"Démarrer", platform.MissionStatusStarted},
	platform.MissionStatusStarted:   {"Arrivé au retrait", platform.MissionStatusAtPickup},
	platform.MissionStatusAtPickup:  {"Colis récupéré", platform.MissionStatusPickedUp},
	platform.MissionStatusPickedUp:  {"Arrivé à la livraison", platform.MissionStatusAtDropoff},
	platform.MissionStatusAtDropoff: {"Livré", platform.MissionStatusDelivered},
}

// actionCommands maps normalized progression commands (accented and plain) to
// the status they request.
var actionCommands = map[string]string{
	"démarrer":              platform.MissionStatusStarted,
	"demarrer":              platform.MissionStatusStarted,
	"arrivé au retrait":     platform.MissionStatusAtPickup,
	"arrive au retrait":     platform.MissionStatusAtPickup,
	"colis récupéré":        platform.MissionStatusPickedUp,
	"colis recupere":        platform.MissionStatusPickedUp,
	"arrivé à la livraison": platform.MissionStatusAtDropoff,
	"arrive a la livraison": platform.MissionStatusAtDropoff,
	"livré":                 platform.MissionStatusDelivered,
	"livre":                 platform.MissionStatusDelivered,
}

func (e *AgentEngine) handleMenu(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	// A shared position while a mission is active is a position update.
	if in.Location != nil && s.Context.MissionID != "" {
		return e.recordPosition(ctx, s, in.Location)
	}

	switch {
	case in.Norm == "dispo" || in.Norm == "disponible" || in.Norm == "en ligne":
		return e.setAvailability(ctx, s, true)
	case in.Norm == "indispo" || in.Norm == "indisponible" || in.Norm == "hors ligne":
		return e.setAvailability(ctx, s, false)
	case in.Norm == "missions":
		return e.listAvailable(ctx, s)
	case in.Norm == "mes missions":
		return e.listMine(ctx, s)
	case strings.HasPrefix(in.Norm, "statut "):
		return e.handleStatusCommand(ctx, s, strings.TrimSpace(strings.TrimPrefix(in.Norm, "statut ")))
	}

	if n, ok := ParseSelection(in.Norm); ok {
		id, _, found := ResolveListing(s, listingAvailable, n)
		if !found {
			id, _, found = ResolveListing(s, listingMyMissions, n)
		}
		if !found {
			return InvalidSelectionReply(s), nil
		}
		return e.showMission(ctx, s, id)
	}

	return models.Reply{}, models.ErrUnknownInput
}

func (e *AgentEngine) setAvailability(ctx context.Context, s *models.Session, available bool) (models.Reply, error) {
	if err := e.platform.SetAvailability(ctx, &s.Auth, available); err != nil {
		return models.Reply{}, err
	}
	s.Context.Available = available
	if available {
		return models.ChoiceReply("Vous êtes maintenant *en ligne*. Les nouvelles missions vous seront proposées.", "Missions", "Indispo"), nil
	}
	return models.ChoiceReply("Vous êtes maintenant *hors ligne*.", "Dispo"), nil
}

func (e *AgentEngine) listAvailable(ctx context.Context, s *models.Session) (models.Reply, error) {
	missions, err := e.platform.AvailableMissions(ctx, &s.Auth)
	if err != nil {
		return models.Reply{}, err
	}
	if len(missions) == 0 {
		return models.TextReply("Aucune mission disponible pour le moment."), nil
	}
	ids := make([]string, len(missions))
	labels := make([]string, len(missions))
	descriptions := make([]string, len(missions))
	for i, m := range missions {
		ids[i] = m.ID
		labels[i] = fmt.Sprintf("%s → %s", m.Pickup, m.Destination)
		descriptions[i] = e.annotateDistance(s, m)
	}
	return RenderListing(s, listingAvailable, "Missions disponibles :", ids, labels, descriptions), nil
}

// annotateDistance computes the distance/ETA estimate for a mission row when
// the agent's coordinates are known.
func (e *AgentEngine) annotateDistance(s *models.Session, m platform.Mission) string {
	loc := s.Context.Location
	if loc == nil || (m.PickupLat == 0 && m.PickupLng == 0) {
		return fmt.Sprintf("%d F", m.DeclaredValue)
	}
	km := haversineKm(loc.Latitude, loc.Longitude, m.PickupLat, m.PickupLng)
	etaMin := int(math.Ceil(km / AverageSpeedKmh * 60))
	return fmt.Sprintf("%.1f km · ~%d min · %d F", km, etaMin, m.DeclaredValue)
}

func (e *AgentEngine) listMine(ctx context.Context, s *models.Session) (models.Reply, error) {
	missions, err := e.platform.MyMissions(ctx, &s.Auth)
	if err != nil {
		return models.Reply{}, err
	}
	var active []platform.Mission
	for _, m := range missions {
		if !platform.IsTerminalMissionStatus(m.Status) {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return models.TextReply("Vous n'avez aucune mission en cours. Tapez *missions* pour en trouver une."), nil
	}
	ids := make([]string, len(active))
	labels := make([]string, len(active))
	descriptions := make([]string, len(active))
	for i, m := range active {
		ids[i] = m.ID
		labels[i] = fmt.Sprintf("%s → %s", m.Pickup, m.Destination)
		descriptions[i] = m.Status
	}
	return RenderListing(s, listingMyMissions, "Vos missions en cours :", ids, labels, descriptions), nil
}

// showMission fetches a mission and renders its status-conditioned actions.
func (e *AgentEngine) showMission(ctx context.Context, s *models.Session, id string) (models.Reply, error) {
	mission, err := e.platform.Mission(ctx, &s.Auth, id)
	if err != nil {
		return models.Reply{}, err
	}
	s.Context.MissionID = mission.ID
	s.Context.Phase = phaseForStatus(mission.Status)
	s.Step = models.StepAgentMissionDetail
	return e.missionReply(mission), nil
}

func (e *AgentEngine) missionReply(m *platform.Mission) models.Reply {
	text := fmt.Sprintf(
		"Mission n° %s\n- Retrait : %s\n- Livraison : %s\n- Destinataire : %s (%s)\n- Valeur : %d F\n- Statut : %s",
		m.ID, m.Pickup, m.Destination, m.RecipientName, m.RecipientPhone, m.DeclaredValue, m.Status,
	)
	switch {
	case m.Status == platform.MissionStatusPending:
		return models.ChoiceReply(text, "Accepter", "Retour")
	case platform.IsTerminalMissionStatus(m.Status):
		return models.ChoiceReply(text, "Retour")
	default:
		if next, ok := statusProgression[m.Status]; ok {
			return models.ChoiceReply(text, next.Label, "Retour")
		}
		return models.ChoiceReply(text, "Retour")
	}
}

func (e *AgentEngine) handleMissionDetail(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if in.Location != nil && s.Context.MissionID != "" {
		return e.recordPosition(ctx, s, in.Location)
	}
	if IsBack(in.Norm) {
		s.Step = models.StepRoleMenu
		return MenuReply(s), nil
	}
	if s.Context.MissionID == "" {
		s.Step = models.StepRoleMenu
		return MenuReply(s), nil
	}

	if in.Norm == "accepter" {
		if err := e.platform.AcceptMission(ctx, &s.Auth, s.Context.MissionID); err != nil {
			return models.Reply{}, err
		}
		s.Context.Phase = models.PhasePickup
		slog.Info("Mission accepted", "id", s.ID, "mission", s.Context.MissionID)
		return models.ChoiceReply(
			fmt.Sprintf("✅ La mission n° %s est à vous. Démarrez quand vous êtes prêt.", s.Context.MissionID),
			"Démarrer", "Retour",
		), nil
	}

	if strings.HasPrefix(in.Norm, "statut ") {
		return e.handleStatusCommand(ctx, s, strings.TrimSpace(strings.TrimPrefix(in.Norm, "statut ")))
	}

	if target, ok := actionCommands[in.Norm]; ok {
		return e.advanceStatus(ctx, s, target)
	}

	return models.Reply{}, models.ErrUnknownInput
}

// advanceStatus performs one progression transition and updates the phase.
func (e *AgentEngine) advanceStatus(ctx context.Context, s *models.Session, target string) (models.Reply, error) {
	if err := e.platform.UpdateDeliveryStatus(ctx, &s.Auth, s.Context.MissionID, target); err != nil {
		return models.Reply{}, err
	}
	s.Context.Phase = phaseForStatus(target)
	slog.Info("Mission status updated", "id", s.ID, "mission", s.Context.MissionID, "status", target)

	if target == platform.MissionStatusDelivered {
		missionID := s.Context.MissionID
		s.Context.MissionID = ""
		s.Context.Phase = ""
		s.Step = models.StepRoleMenu
		return models.ChoiceReply(fmt.Sprintf("🎉 Mission n° %s livrée. Bien joué !", missionID), "Missions", "Mes missions"), nil
	}
	if next, ok := statusProgression[target]; ok {
		return models.ChoiceReply(fmt.Sprintf("Statut mis à jour : *%s*.", target), next.Label, "Retour"), nil
	}
	return models.ChoiceReply(fmt.Sprintf("Statut mis à jour : *%s*.", target), "Retour"), nil
}

// handleStatusCommand validates a free-form "statut <value>" token against
// the fixed status set.
func (e *AgentEngine) handleStatusCommand(ctx context.Context, s *models.Session, token string) (models.Reply, error) {
	if !platform.IsValidMissionStatus(token) {
		return models.TextReply(fmt.Sprintf(
			"Statut inconnu : %q. Valeurs possibles : %s.",
			token, strings.Join(platform.ValidMissionStatuses, ", "),
		)), nil
	}
	if s.Context.MissionID == "" {
		return models.TextReply("Sélectionnez d'abord une mission (*mes missions*)."), nil
	}
	return e.advanceStatus(ctx, s, token)
}

// recordPosition routes shared coordinates to the pickup or delivery leg
// depending on the phase recorded in the session context.
func (e *AgentEngine) recordPosition(ctx context.Context, s *models.Session, loc *models.Coordinates) (models.Reply, error) {
	phase := s.Context.Phase
	if phase == "" {
		phase = models.PhasePickup
	}
	if err := e.platform.UpdateDeliveryPosition(ctx, &s.Auth, s.Context.MissionID, phase, loc.Latitude, loc.Longitude); err != nil {
		return models.Reply{}, err
	}
	slog.Debug("Mission position recorded", "id", s.ID, "mission", s.Context.MissionID, "phase", phase)
	return models.TextReply("📍 Position enregistrée."), nil
}

// phaseForStatus says which leg position updates belong to at a status.
func phaseForStatus(status string) models.DeliveryPhase {
	switch status {
	case platform.MissionStatusPickedUp, platform.MissionStatusAtDropoff, platform.MissionStatusDelivered:
		return models.PhaseDelivery
	default:
		return models.PhasePickup
	}
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
