package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/livreo/livreo/internal/classifier"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// MinPlaceLength is the minimum rune count accepted for a pickup or
// destination given as free text.
const MinPlaceLength = 2

// CourierFlow is the courier request conversation: collect pickup,
// destination, recipient, declared value and description, then recap and
// create the mission.
type CourierFlow struct {
	platform *platform.Client
}

// NewCourierFlow creates the courier request flow.
func NewCourierFlow(p *platform.Client) *CourierFlow {
	return &CourierFlow{platform: p}
}

// Start resets the draft and enters the flow at the pickup step.
func (f *CourierFlow) Start(s *models.Session) models.Reply {
	s.Draft = &models.Draft{}
	s.Step = models.StepCourierPickup
	return models.LocationReply("C'est parti ! Où devons-nous récupérer le colis ? Envoyez l'adresse ou partagez votre position.")
}

// steps returns this flow's transition table.
func (f *CourierFlow) steps() transitionTable {
	return transitionTable{
		models.StepCourierPickup:         f.handlePickup,
		models.StepCourierDestination:    f.handleDestination,
		models.StepCourierRecipientName:  f.handleRecipientName,
		models.StepCourierRecipientPhone: f.handleRecipientPhone,
		models.StepCourierValue:          f.handleValue,
		models.StepCourierDescription:    f.handleDescription,
		models.StepCourierRecap:          f.handleRecap,
	}
}

// expects declares the field kind each step awaits, for the fallback tier.
func (f *CourierFlow) expects() map[models.Step]classifier.FieldKind {
	return map[models.Step]classifier.FieldKind{
		models.StepCourierPickup:         classifier.FieldAddress,
		models.StepCourierDestination:    classifier.FieldAddress,
		models.StepCourierRecipientName:  classifier.FieldName,
		models.StepCourierRecipientPhone: classifier.FieldPhone,
		models.StepCourierValue:          classifier.FieldAmount,
	}
}

func (f *CourierFlow) handlePickup(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	d := s.EnsureDraft()
	switch {
	case in.Location != nil:
		d.Pickup = fmt.Sprintf("%.6f,%.6f", in.Location.Latitude, in.Location.Longitude)
	case utf8.RuneCountInString(in.Raw) >= MinPlaceLength:
		d.Pickup = in.Raw
	default:
		return models.Reply{}, models.ErrUnknownInput
	}
	s.Step = models.StepCourierDestination
	return models.TextReply("Parfait. Quelle est l'adresse de livraison ?"), nil
}

func (f *CourierFlow) handleDestination(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if utf8.RuneCountInString(in.Raw) < MinPlaceLength {
		return models.Reply{}, models.ErrUnknownInput
	}
	s.EnsureDraft().Destination = in.Raw
	s.Step = models.StepCourierRecipientName
	return models.TextReply("Quel est le nom du destinataire ?"), nil
}

func (f *CourierFlow) handleRecipientName(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if utf8.RuneCountInString(in.Raw) < MinPlaceLength {
		return models.Reply{}, models.ErrUnknownInput
	}
	s.EnsureDraft().RecipientName = in.Raw
	s.Step = models.StepCourierRecipientPhone
	return models.TextReply("Quel est le numéro de téléphone du destinataire ? (ex : 07000000)"), nil
}

func (f *CourierFlow) handleRecipientPhone(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if in.Raw == "" {
		return models.Reply{}, models.ErrUnknownInput
	}
	s.EnsureDraft().RecipientPhone = in.Raw
	s.Step = models.StepCourierValue
	return models.TextReply("Quelle est la valeur déclarée du colis, en francs ? (ex : 15000)"), nil
}

func (f *CourierFlow) handleValue(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	v, err := strconv.Atoi(in.Norm)
	if err != nil || v <= 0 {
		// Let the fallback tier try to pull an amount out of free text.
		return models.Reply{}, models.ErrUnknownInput
	}
	s.EnsureDraft().DeclaredValue = v
	s.Step = models.StepCourierDescription
	return models.TextReply("Décrivez brièvement le colis."), nil
}

func (f *CourierFlow) handleDescription(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if in.Raw == "" {
		return models.Reply{}, models.ErrUnknownInput
	}
	s.EnsureDraft().Description = in.Raw
	s.Step = models.StepCourierRecap
	return f.recapReply(s), nil
}

// recapReply renders the accumulated draft with the ternary decision.
func (f *CourierFlow) recapReply(s *models.Session) models.Reply {
	d := s.EnsureDraft()
	text := fmt.Sprintf(
		"Récapitulatif de votre demande :\n"+
			"- Retrait : %s\n"+
			"- Livraison : %s\n"+
			"- Destinataire : %s (%s)\n"+
			"- Valeur déclarée : %d F\n"+
			"- Description : %s",
		d.Pickup, d.Destination, d.RecipientName, d.RecipientPhone, d.DeclaredValue, d.Description,
	)
	return models.ChoiceReply(text, "Confirmer", "Annuler", "Modifier")
}

func (f *CourierFlow) handleRecap(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	switch {
	case IsConfirm(in.Norm):
		d := s.EnsureDraft()
		req := platform.MissionRequest{
			Pickup:         d.Pickup,
			Destination:    d.Destination,
			RecipientName:  d.RecipientName,
			RecipientPhone: d.RecipientPhone,
			DeclaredValue:  d.DeclaredValue,
			Description:    d.Description,
		}
		if loc := s.Context.Location; loc != nil {
			req.PickupLat = loc.Latitude
			req.PickupLng = loc.Longitude
		}
		mission, err := f.platform.CreateMission(ctx, &s.Auth, req)
		if err != nil {
			return models.Reply{}, err
		}
		slog.Info("Courier mission created", "id", s.ID, "mission", mission.ID)
		s.ClearDraft()
		s.Step = models.StepRoleMenu
		return models.TextReply(fmt.Sprintf("✅ Votre demande de coursier n° %s est enregistrée. Un livreur va la prendre en charge. Tapez *menu* pour continuer.", mission.ID)), nil

	case IsCancel(in.Norm):
		s.ClearDraft()
		s.Step = models.StepRoleMenu
		return MenuReply(s), nil

	case IsModify(in.Norm):
		// Re-enters at the first editable field, keeping collected values.
		s.Step = models.StepCourierPickup
		d := s.EnsureDraft()
		return models.TextReply(fmt.Sprintf("Reprenons. Lieu de retrait actuel : %s. Envoyez la nouvelle adresse de retrait, ou renvoyez la même.", d.Pickup)), nil
	}

	// Any other input re-prompts with the same three options.
	return f.recapReply(s), nil
}
