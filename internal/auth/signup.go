package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/livreo/livreo/internal/flow"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// MinPasswordLength is the minimum accepted signup password length.
const MinPasswordLength = 6

// Signup wizards per role. The field keys are the platform's payload keys.
var (
	clientWizard = &flow.Wizard{Fields: []flow.WizardField{
		{Step: models.StepSignupName, Key: "nom_complet", Prompt: "Quel est votre *nom complet* ?"},
		{Step: models.StepSignupEmail, Key: "email", Prompt: "Quelle est votre *adresse e-mail* ?"},
		{Step: models.StepSignupAddress, Key: "adresse", Prompt: "Quelle est votre *adresse* (quartier, repère) ?"},
	}}

	courierWizard = &flow.Wizard{Fields: []flow.WizardField{
		{Step: models.StepSignupName, Key: "nom_complet", Prompt: "Quel est votre *nom complet* ?"},
		{Step: models.StepSignupEmail, Key: "email", Prompt: "Quelle est votre *adresse e-mail* ?"},
		{Step: models.StepSignupPhone, Key: "telephone", Prompt: "Quel est votre *numéro de téléphone* ?"},
		{Step: models.StepSignupZone, Key: "zone", Prompt: "Dans quelle *zone* travaillez-vous ?"},
		{Step: models.StepSignupVehicle, Key: "vehicule", Prompt: "Quel est votre *véhicule* (moto, vélo, voiture…) ?"},
		{Step: models.StepSignupLicence, Key: "permis", Prompt: "Quel est votre *numéro de permis* ?"},
	}}

	merchantWizard = &flow.Wizard{Fields: []flow.WizardField{
		{Step: models.StepSignupBusiness, Key: "nom_entreprise", Prompt: "Quel est le *nom de votre entreprise* ?"},
		{Step: models.StepSignupResponsible, Key: "responsable", Prompt: "Qui est le *responsable* ?"},
		{Step: models.StepSignupEmail, Key: "email", Prompt: "Quelle est votre *adresse e-mail* ?"},
		{Step: models.StepSignupPhone, Key: "telephone", Prompt: "Quel est le *téléphone* de la boutique ?"},
		{Step: models.StepSignupAddress, Key: "adresse", Prompt: "Quelle est l'*adresse* de la boutique ?"},
		{Step: models.StepSignupRegistration, Key: "numero_registre", Prompt: "Quel est votre *numéro de registre de commerce* ?"},
	}}

	wizardByRole = map[models.Role]*flow.Wizard{
		models.RoleClient:   clientWizard,
		models.RoleCourier:  courierWizard,
		models.RoleMerchant: merchantWizard,
	}
)

func signupRoleReply() models.Reply {
	return models.ChoiceReply(
		"Très bien, créons votre compte. Vous êtes :",
		"Client", "Livreur", "Marchand",
	)
}

// signupWizardFor returns the wizard a session is currently in, or nil.
func (g *Gateway) signupWizardFor(s *models.Session) *flow.Wizard {
	if s.Draft == nil || s.Draft.SignupRole == "" {
		return nil
	}
	w := wizardByRole[s.Draft.SignupRole]
	if w == nil || w.Index(s.Step) < 0 {
		return nil
	}
	return w
}

func (g *Gateway) handleSignupRole(s *models.Session, in flow.Input) (models.Reply, error) {
	if flow.IsBack(in.Norm) {
		s.ClearDraft()
		s.Step = models.StepWelcomeChoice
		return welcomeReply(), nil
	}

	var role models.Role
	switch in.Norm {
	case "client", "1":
		role = models.RoleClient
	case "livreur", "2":
		role = models.RoleCourier
	case "marchand", "3":
		role = models.RoleMerchant
	default:
		return signupRoleReply(), nil
	}

	draft := s.EnsureDraft()
	draft.SignupRole = role
	first := wizardByRole[role].First()
	s.Step = first.Step
	return models.TextReply(first.Prompt), nil
}

// handleSignupField consumes the answer to the wizard field the session is on
// and advances, or steps back on "retour".
func (g *Gateway) handleSignupField(s *models.Session, in flow.Input) (models.Reply, error) {
	w := g.signupWizardFor(s)
	field := w.Field(s.Step)

	if flow.IsBack(in.Norm) {
		prev, ok := w.Back(s.Step)
		if !ok {
			// Back at the first field returns to the role selection.
			s.Step = models.StepSignupRole
			return signupRoleReply(), nil
		}
		s.Step = prev.Step
		return models.TextReply(prev.Prompt), nil
	}

	if in.Raw == "" {
		return models.TextReply(field.Prompt), nil
	}
	if field.Key == "email" && !strings.Contains(in.Raw, "@") {
		return models.TextReply("Cette adresse e-mail ne semble pas valide. " + field.Prompt), nil
	}
	s.EnsureDraft().Set(field.Key, in.Raw)

	next, ok := w.Next(s.Step)
	if !ok {
		s.Step = models.StepSignupPassword
		return models.TextReply(fmt.Sprintf("Pour finir, choisissez un *mot de passe* (au moins %d caractères).", MinPasswordLength)), nil
	}
	s.Step = next.Step
	return models.TextReply(next.Prompt), nil
}

func (g *Gateway) handleSignupPassword(ctx context.Context, s *models.Session, in flow.Input) (models.Reply, error) {
	draft := s.EnsureDraft()
	w := wizardByRole[draft.SignupRole]
	if w == nil {
		s.Step = models.StepSignupRole
		return signupRoleReply(), nil
	}

	if flow.IsBack(in.Norm) {
		last := w.Fields[len(w.Fields)-1]
		s.Step = last.Step
		return models.TextReply(last.Prompt), nil
	}
	if len(in.Raw) < MinPasswordLength {
		return models.TextReply(fmt.Sprintf("Mot de passe trop court : il faut au moins %d caractères.", MinPasswordLength)), nil
	}

	fields := make(map[string]string, len(draft.Fields)+1)
	for k, v := range draft.Fields {
		fields[k] = v
	}
	if fields["telephone"] == "" {
		fields["telephone"] = s.ID
	}

	if err := g.platform.Signup(ctx, draft.SignupRole, fields, in.Raw); err != nil {
		var remoteErr *platform.RemoteError
		if errors.As(err, &remoteErr) && len(remoteErr.Fields) > 0 {
			// Field-level rejection: show every problem at once and restart
			// the collection with the draft preserved.
			var b strings.Builder
			b.WriteString("Votre inscription a été refusée :\n")
			for field, message := range remoteErr.Fields {
				fmt.Fprintf(&b, "- %s : %s\n", field, message)
			}
			b.WriteString("\nReprenons. ")
			first := w.First()
			s.Step = first.Step
			b.WriteString(first.Prompt)
			return models.TextReply(b.String()), nil
		}
		slog.Error("Signup call failed", "id", s.ID, "role", draft.SignupRole, "error", err)
		return models.TextReply("Le service est momentanément indisponible. Veuillez réessayer dans un instant."), nil
	}

	slog.Info("Account created", "id", s.ID, "role", draft.SignupRole)
	result, err := g.platform.Login(ctx, s.ID, in.Raw)
	if err != nil {
		slog.Warn("Auto-login after signup failed", "id", s.ID, "error", err)
		s.ClearDraft()
		s.Step = models.StepWelcomeChoice
		return models.ChoiceReply("✅ Votre compte est créé ! Connectez-vous pour continuer.", "Connexion"), nil
	}
	return g.completeLogin(ctx, s, result)
}
