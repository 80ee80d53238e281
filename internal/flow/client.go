package flow

import (
	"context"

	"github.com/livreo/livreo/internal/classifier"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// ClientEngine serves the client role: the courier request flow and the
// marketplace order flow, entered from the shared role menu.
type ClientEngine struct {
	machine
	courier *CourierFlow
	market  *MarketplaceFlow
}

// NewClientEngine creates the client engine over the platform client and
// fallback classifier.
func NewClientEngine(p *platform.Client, cls classifier.Classifier) *ClientEngine {
	e := &ClientEngine{
		courier: NewCourierFlow(p),
		market:  NewMarketplaceFlow(p),
	}

	table := transitionTable{models.StepRoleMenu: e.handleMenu}
	for step, h := range e.courier.steps() {
		table[step] = h
	}
	for step, h := range e.market.steps() {
		table[step] = h
	}

	expects := make(map[models.Step]classifier.FieldKind)
	for step, kind := range e.courier.expects() {
		expects[step] = kind
	}
	for step, kind := range e.market.expects() {
		expects[step] = kind
	}

	e.machine = machine{
		name:     "client",
		table:    table,
		expects:  expects,
		classify: cls,
		onIntent: e.switchIntent,
	}
	return e
}

// Role implements Engine.
func (e *ClientEngine) Role() models.Role { return models.RoleClient }

// Handle implements Engine.
func (e *ClientEngine) Handle(ctx context.Context, s *models.Session, msg models.Message) (models.Reply, error) {
	return e.machine.handle(ctx, s, NewInput(msg))
}

// handleMenu consumes the role menu choice.
func (e *ClientEngine) handleMenu(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	switch in.Norm {
	case "envoyer un colis", "envoyer", "colis", "1":
		return e.courier.Start(s), nil
	case "commander", "commande", "2":
		return e.market.Start(ctx, s)
	case "aide", "3":
		return models.ChoiceReply(
			"Je peux vous aider à envoyer un colis par coursier ou à commander chez un marchand. Choisissez une option.",
			"Envoyer un colis", "Commander",
		), nil
	}
	return models.Reply{}, models.ErrUnknownInput
}

// switchIntent honors an intent change detected by the fallback classifier.
func (e *ClientEngine) switchIntent(ctx context.Context, s *models.Session, intent classifier.Intent) (models.Reply, bool) {
	switch intent {
	case classifier.IntentMarketplace:
		reply, err := e.market.Start(ctx, s)
		if err != nil {
			return models.Reply{}, false
		}
		return reply, true
	case classifier.IntentCourier:
		// Only switch into the courier flow from outside it, so an in-flow
		// mention of "colis" does not restart the collection.
		if s.Step == models.StepRoleMenu || s.Draft == nil {
			return e.courier.Start(s), true
		}
	}
	return models.Reply{}, false
}
