// Package auth owns the unauthenticated portion of every conversation: the
// welcome menu, password login against the delivery platform, and the
// role-specific signup wizards. Once a session holds tokens the role router
// hands turns to the flow engines instead.
package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/livreo/livreo/internal/flow"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// Gateway implements flow.AuthGateway over the platform client.
type Gateway struct {
	platform *platform.Client
}

// NewGateway creates the auth gateway.
func NewGateway(p *platform.Client) *Gateway {
	return &Gateway{platform: p}
}

// Owns reports whether this turn belongs to the gateway. Every session
// without an access token does, whatever step it was left on.
func (g *Gateway) Owns(s *models.Session) bool {
	return !s.Authenticated()
}

// Handle consumes one pre-authentication turn.
func (g *Gateway) Handle(ctx context.Context, s *models.Session, msg models.Message) (models.Reply, error) {
	in := flow.NewInput(msg)

	switch s.Step {
	case models.StepWelcomeChoice:
		return g.handleWelcomeChoice(ctx, s, in)
	case models.StepLoginPassword:
		return g.handleLoginPassword(ctx, s, in)
	case models.StepSignupRole:
		return g.handleSignupRole(s, in)
	case models.StepSignupPassword:
		return g.handleSignupPassword(ctx, s, in)
	}
	if g.signupWizardFor(s) != nil {
		return g.handleSignupField(s, in)
	}

	// StepWelcome, and any step a demoted session was left on.
	s.Step = models.StepWelcomeChoice
	return welcomeReply(), nil
}

func welcomeReply() models.Reply {
	return models.ChoiceReply(
		"Bienvenue chez Livreo 🛵 — vos courses et livraisons par WhatsApp.\n"+
			"Que souhaitez-vous faire ?",
		"Connexion", "Inscription", "Aide",
	)
}

func (g *Gateway) handleWelcomeChoice(ctx context.Context, s *models.Session, in flow.Input) (models.Reply, error) {
	switch in.Norm {
	case "connexion", "1":
		s.Step = models.StepLoginPassword
		return models.TextReply("Entrez votre *mot de passe* pour vous connecter."), nil
	case "inscription", "2":
		s.Step = models.StepSignupRole
		return signupRoleReply(), nil
	case "aide", "3":
		return models.ChoiceReply(
			"Livreo vous permet d'envoyer des colis, de commander chez les marchands de votre ville, "+
				"et de travailler comme livreur ou marchand partenaire.\n"+
				"Connectez-vous si vous avez déjà un compte, sinon inscrivez-vous.",
			"Connexion", "Inscription",
		), nil
	}
	return welcomeReply(), nil
}

func (g *Gateway) handleLoginPassword(ctx context.Context, s *models.Session, in flow.Input) (models.Reply, error) {
	if flow.IsBack(in.Norm) {
		s.Step = models.StepWelcomeChoice
		return welcomeReply(), nil
	}
	result, err := g.platform.Login(ctx, s.ID, in.Raw)
	if err != nil {
		var authErr *platform.AuthError
		if errors.As(err, &authErr) {
			slog.Info("Login rejected", "id", s.ID)
			s.Step = models.StepWelcomeChoice
			return models.ChoiceReply("Mot de passe incorrect.", "Connexion", "Aide"), nil
		}
		slog.Error("Login call failed", "id", s.ID, "error", err)
		return models.TextReply("Le service est momentanément indisponible. Veuillez réessayer dans un instant."), nil
	}
	return g.completeLogin(ctx, s, result)
}

// completeLogin stores the token pair, resolves the account's role and
// display name, and lands the session on the role menu.
func (g *Gateway) completeLogin(ctx context.Context, s *models.Session, result *platform.LoginResult) (models.Reply, error) {
	s.Auth = models.Auth{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}
	s.User = models.User{RemoteID: result.UserID}
	s.ClearDraft()

	role, profile := g.resolveRole(ctx, s, result.Role)
	s.User.Role = role
	s.User.DisplayName = displayName(role, profile, s.ID)
	s.Step = models.StepRoleMenu
	slog.Info("Session authenticated", "id", s.ID, "role", role)
	return flow.MenuReply(s), nil
}

// resolveRole trusts an explicit role in the login response, otherwise probes
// the role-specific profile endpoints. Only the matching role's endpoint
// answers for a given account.
func (g *Gateway) resolveRole(ctx context.Context, s *models.Session, explicit string) (models.Role, *platform.Profile) {
	if models.IsValidRole(models.Role(explicit)) {
		role := models.Role(explicit)
		profile, err := g.platform.MyProfile(ctx, &s.Auth, role)
		if err != nil {
			slog.Warn("Profile fetch failed", "id", s.ID, "role", role, "error", err)
			return role, nil
		}
		return role, profile
	}

	for _, role := range []models.Role{models.RoleClient, models.RoleCourier, models.RoleMerchant} {
		profile, err := g.platform.MyProfile(ctx, &s.Auth, role)
		if err == nil {
			return role, profile
		}
	}
	slog.Warn("Role probe found no profile, defaulting to client", "id", s.ID)
	return models.RoleClient, nil
}

// displayName picks the greeting name per role, falling back to the phone
// number the platform knows the account by.
func displayName(role models.Role, p *platform.Profile, fallback string) string {
	if p == nil {
		return fallback
	}
	switch role {
	case models.RoleCourier:
		if p.FullName != "" {
			return p.FullName
		}
	case models.RoleMerchant:
		if p.BusinessName != "" {
			return p.BusinessName
		}
		if p.ResponsibleName != "" {
			return p.ResponsibleName
		}
	default:
		switch {
		case p.FirstName != "" && p.LastName != "":
			return p.FirstName + " " + p.LastName
		case p.FirstName != "":
			return p.FirstName
		case p.FullName != "":
			return p.FullName
		}
	}
	return fallback
}
