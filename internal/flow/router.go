package flow

import (
	"context"
	"log/slog"

	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/session"
)

// Engine is one role's step-sequenced business conversation.
type Engine interface {
	// Role names the user role this engine serves.
	Role() models.Role
	// Handle consumes one inbound message for a session the caller has locked.
	Handle(ctx context.Context, s *models.Session, msg models.Message) (models.Reply, error)
}

// AuthGateway owns the portion of the conversation before authentication,
// including the signup wizard. Implemented by the auth package.
type AuthGateway interface {
	// Owns reports whether the gateway should handle this session's turn.
	Owns(s *models.Session) bool
	Handle(ctx context.Context, s *models.Session, msg models.Message) (models.Reply, error)
}

// Router resolves the session for each inbound message and dispatches it to
// the auth gateway or the engine matching the session's role.
type Router struct {
	store   *session.Store
	auth    AuthGateway
	engines map[models.Role]Engine
}

// NewRouter creates a router over the given session store, auth gateway and
// role engines.
func NewRouter(store *session.Store, auth AuthGateway, engines ...Engine) *Router {
	byRole := make(map[models.Role]Engine, len(engines))
	for _, e := range engines {
		byRole[e.Role()] = e
	}
	return &Router{store: store, auth: auth, engines: byRole}
}

// Route returns the engine for a role, defaulting to the client engine when
// the role is unset or unrecognized. Side-effect-free.
func (r *Router) Route(role models.Role) Engine {
	if e, ok := r.engines[role]; ok {
		return e
	}
	return r.engines[models.RoleClient]
}

// genericFailureReply is the single response for anything escaping an engine,
// so the webhook handler never fails visibly to the end user.
var genericFailureReply = models.TextReply("Désolé, une erreur est survenue. Veuillez réessayer.")

// HandleMessage processes one inbound message end to end and always produces
// a reply, together with the step the session ended the turn on. The
// session's lock is held for the whole turn.
func (r *Router) HandleMessage(ctx context.Context, msg models.Message) (models.Reply, models.Step) {
	reply := genericFailureReply
	step := models.StepWelcome
	err := r.store.Dispatch(msg.From, func(s *models.Session) error {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Router recovered from panic", "id", s.ID, "step", s.Step, "panic", rec)
				reply = genericFailureReply
			}
			step = s.Step
		}()

		s.Context.RememberTurn("user", msg.Text)
		if msg.Location != nil {
			s.Context.Location = msg.Location
		}

		reply = r.handleTurn(ctx, s, msg)
		s.Context.RememberTurn("assistant", reply.Text)
		return nil
	})
	if err != nil {
		slog.Error("Router dispatch failed", "from", msg.From, "error", err)
		return genericFailureReply, step
	}
	return reply, step
}

func (r *Router) handleTurn(ctx context.Context, s *models.Session, msg models.Message) models.Reply {
	norm := Normalize(msg.Text)

	// Global reset command: clears draft and context, preserves auth.
	if norm == "menu" && s.Authenticated() {
		slog.Debug("Router global menu command", "id", s.ID)
		s.Reset(true)
		return MenuReply(s)
	}

	if r.auth.Owns(s) {
		reply, err := r.auth.Handle(ctx, s, msg)
		if err != nil {
			slog.Error("Auth gateway failed", "id", s.ID, "step", s.Step, "error", err)
			return genericFailureReply
		}
		return reply
	}

	engine := r.Route(s.User.Role)
	if engine == nil {
		slog.Error("Router has no engine for role", "id", s.ID, "role", s.User.Role)
		return genericFailureReply
	}
	reply, err := engine.Handle(ctx, s, msg)
	if err != nil {
		slog.Error("Flow engine failed", "id", s.ID, "role", s.User.Role, "step", s.Step, "error", err)
		return genericFailureReply
	}
	return reply
}
