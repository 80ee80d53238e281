// Package flow provides the step-sequenced conversation engines and the role
// router that dispatches each inbound message to one of them.
//
// Every engine is a transition table from the session's current step to a
// handler; a shared executor owns the fallback-classification and
// error-conversion policy so the four engines stay plain tables.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/livreo/livreo/internal/classifier"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// AcceptConfidence is the minimum classifier confidence at which an extracted
// value is accepted in place of strict re-prompting.
const AcceptConfidence = 0.7

// Input is the normalized view of one inbound message a handler consumes.
type Input struct {
	Raw      string
	Norm     string // lowercased, trimmed
	Location *models.Coordinates
}

// NewInput normalizes an inbound message for handler consumption.
func NewInput(msg models.Message) Input {
	return Input{
		Raw:      strings.TrimSpace(msg.Text),
		Norm:     Normalize(msg.Text),
		Location: msg.Location,
	}
}

// Normalize lowercases and trims free-form input for matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// handlerFunc consumes one input at one step and produces the reply. The
// handler mutates the session (step, draft, context) in place; the caller
// already holds the session's lock.
type handlerFunc func(ctx context.Context, s *models.Session, in Input) (models.Reply, error)

// transitionTable maps steps to their handlers.
type transitionTable map[models.Step]handlerFunc

// intentSwitch lets an engine honor a classifier intent change by starting
// another of its flows. It returns false when the intent has no home here.
type intentSwitch func(ctx context.Context, s *models.Session, intent classifier.Intent) (models.Reply, bool)

// machine is the generic executor shared by all engines: table dispatch,
// fallback classification on unmatched input, and conversion of platform
// errors into user-facing replies.
type machine struct {
	name     string
	table    transitionTable
	expects  map[models.Step]classifier.FieldKind
	classify classifier.Classifier
	onIntent intentSwitch
}

func (m *machine) handle(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	h, ok := m.table[s.Step]
	if !ok {
		// Unknown step: return the conversation to safe ground.
		slog.Warn("Flow received unknown step, returning to menu", "flow", m.name, "step", s.Step, "id", s.ID)
		s.Step = models.StepRoleMenu
		h, ok = m.table[models.StepRoleMenu]
		if !ok {
			return models.TextReply("Reprenons depuis le début. Tapez *menu*."), nil
		}
	}

	reply, err := h(ctx, s, in)
	if err == nil {
		return reply, nil
	}

	if errors.Is(err, models.ErrUnknownInput) {
		return m.fallback(ctx, s, in)
	}
	return m.convertError(s, err)
}

// fallback routes out-of-grammar input through the classifier before giving
// up with a contextual help message.
func (m *machine) fallback(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	req := classifier.Request{
		Input:   in.Raw,
		Flow:    m.name,
		Step:    s.Step,
		Expect:  m.expects[s.Step],
		History: s.Context.History,
	}
	result, err := m.classify.Classify(ctx, req)
	if err != nil {
		slog.Warn("Fallback classifier failed", "flow", m.name, "step", s.Step, "error", err)
		return m.helpReply(s), nil
	}

	if result.Intent != classifier.IntentNone && m.onIntent != nil {
		if reply, ok := m.onIntent(ctx, s, result.Intent); ok {
			slog.Info("Fallback classifier switched intent", "flow", m.name, "from_step", s.Step, "intent", result.Intent)
			return reply, nil
		}
	}

	if result.Value != "" && result.Confidence >= AcceptConfidence {
		slog.Debug("Fallback classifier extracted value", "flow", m.name, "step", s.Step, "confidence", result.Confidence)
		retry := Input{Raw: result.Value, Norm: Normalize(result.Value), Location: in.Location}
		reply, retryErr := m.table[s.Step](ctx, s, retry)
		if retryErr == nil {
			return reply, nil
		}
		if !errors.Is(retryErr, models.ErrUnknownInput) {
			return m.convertError(s, retryErr)
		}
	}

	return m.helpReply(s), nil
}

// helpReply is the generic give-up message, kept on the same step.
func (m *machine) helpReply(s *models.Session) models.Reply {
	return models.ChoiceReply(
		"Je n'ai pas compris votre message. Reformulez, ou tapez *menu* pour revenir au menu principal.",
		"Menu", "Aide",
	)
}

// convertError maps platform failures to user-facing replies. Remote and
// transport details are logged, never surfaced.
func (m *machine) convertError(s *models.Session, err error) (models.Reply, error) {
	var authErr *platform.AuthError
	var conflictErr *platform.ConflictError
	var remoteErr *platform.RemoteError
	var transportErr *platform.TransportError

	switch {
	case errors.As(err, &authErr):
		slog.Info("Flow demoting session after auth failure", "flow", m.name, "id", s.ID, "reason", authErr.Reason)
		s.Auth.Clear()
		s.User = models.User{}
		s.Context.MerchantToken = ""
		s.Step = models.StepWelcome
		return models.ChoiceReply("Votre session a expiré. Veuillez vous reconnecter.", "Connexion", "Aide"), nil
	case errors.As(err, &conflictErr):
		slog.Info("Flow conflict", "flow", m.name, "id", s.ID, "error", err)
		return models.TextReply("Cette action n'est plus possible : quelqu'un est passé avant vous. Tapez *missions* pour voir la liste à jour."), nil
	case errors.As(err, &remoteErr), errors.As(err, &transportErr):
		slog.Error("Flow remote failure", "flow", m.name, "id", s.ID, "error", err)
		return models.TextReply("Désolé, le service est momentanément indisponible. Veuillez réessayer dans un instant."), nil
	}
	return models.Reply{}, err
}

// Recap/confirm vocabulary shared by all flows.
var (
	confirmWords = []string{"confirmer", "confirme", "oui", "ok", "valider", "1"}
	cancelWords  = []string{"annuler", "annule", "non", "cancel", "2"}
	modifyWords  = []string{"modifier", "modif", "changer", "3"}
	backWords    = []string{"retour", "back", "precedent", "précédent"}
)

func matchWord(norm string, words []string) bool {
	for _, w := range words {
		if norm == w {
			return true
		}
	}
	return false
}

// IsConfirm reports whether input is a confirm synonym.
func IsConfirm(norm string) bool { return matchWord(norm, confirmWords) }

// IsCancel reports whether input is a cancel synonym.
func IsCancel(norm string) bool { return matchWord(norm, cancelWords) }

// IsModify reports whether input is a modify synonym.
func IsModify(norm string) bool { return matchWord(norm, modifyWords) }

// IsBack reports whether input is the contextual back command.
func IsBack(norm string) bool { return matchWord(norm, backWords) }

// ParseSelection parses a strict 1-indexed numbered selection.
func ParseSelection(norm string) (int, bool) {
	n, err := strconv.Atoi(norm)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// RenderListing stores a fresh numbered mapping in the session context and
// builds the interactive list reply. Every render replaces the previous
// mapping so stale selections never resolve.
func RenderListing(s *models.Session, kind, title string, ids, labels, descriptions []string) models.Reply {
	if len(ids) > models.MaxListRows {
		ids = ids[:models.MaxListRows]
		labels = labels[:models.MaxListRows]
		if descriptions != nil {
			descriptions = descriptions[:models.MaxListRows]
		}
	}
	s.Context.Listing = &models.Listing{Kind: kind, IDs: ids, Labels: labels}

	rows := make([]models.ListRow, len(ids))
	var b strings.Builder
	b.WriteString(title)
	for i := range ids {
		desc := ""
		if descriptions != nil {
			desc = descriptions[i]
		}
		rows[i] = models.ListRow{ID: strconv.Itoa(i + 1), Title: labels[i], Description: desc}
		fmt.Fprintf(&b, "\n%d. %s", i+1, labels[i])
		if desc != "" {
			fmt.Fprintf(&b, " — %s", desc)
		}
	}
	b.WriteString("\n\nRépondez avec le numéro de votre choix.")
	return models.Reply{Text: b.String(), List: &models.ListPrompt{Title: title, Rows: rows}}
}

// ResolveListing resolves a numbered selection against the most recent
// listing, but only when that listing is of the expected kind.
func ResolveListing(s *models.Session, kind string, n int) (id, label string, ok bool) {
	l := s.Context.Listing
	if l == nil || l.Kind != kind {
		return "", "", false
	}
	return l.Resolve(n)
}

// InvalidSelectionReply re-prompts with the currently valid numbers.
func InvalidSelectionReply(s *models.Session) models.Reply {
	l := s.Context.Listing
	if l == nil || len(l.IDs) == 0 {
		return models.TextReply("Cette liste n'est plus valable. Tapez *menu* pour recommencer.")
	}
	return models.TextReply(fmt.Sprintf("Choix invalide. Répondez avec un numéro entre 1 et %d.", len(l.IDs)))
}

// MenuReply renders the authenticated role menu for a session.
func MenuReply(s *models.Session) models.Reply {
	greeting := ""
	if s.User.DisplayName != "" {
		greeting = fmt.Sprintf("Bonjour %s ! ", s.User.DisplayName)
	}
	switch s.User.Role {
	case models.RoleCourier:
		return models.ChoiceReply(
			greeting+"Tableau de bord livreur :\n"+
				"- *dispo* / *indispo* : changer votre disponibilité\n"+
				"- *missions* : missions disponibles\n"+
				"- *mes missions* : vos missions en cours\n"+
				"- *statut <valeur>* : mettre à jour un statut",
			"Missions", "Mes missions", "Dispo",
		)
	case models.RoleMerchant:
		return models.ChoiceReply(
			greeting+"Espace marchand. Connectez-vous à votre boutique pour continuer.",
			"Connexion boutique", "Aide",
		)
	default:
		return models.ChoiceReply(
			greeting+"Que souhaitez-vous faire ?",
			"Envoyer un colis", "Commander", "Aide",
		)
	}
}
