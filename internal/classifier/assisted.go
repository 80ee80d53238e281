package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/livreo/livreo/internal/genai"
)

// assistedSystemPrompt instructs the model to return a strict JSON object.
const assistedSystemPrompt = `Tu aides un service de livraison par chat à comprendre un message hors format.
Réponds UNIQUEMENT avec un objet JSON de la forme:
{"value": "...", "confidence": 0.0, "intent": "", "fields": {}}
- "value": la meilleure valeur extraite pour l'information attendue, sinon "".
- "confidence": un nombre entre 0 et 1.
- "intent": "marketplace", "courier", "follow_up" ou "" si le message suggère un changement d'intention.
- "fields": toute autre information structurée détectée.`

// Assisted layers GenAI extraction over the deterministic tier. When the
// GenAI call fails or returns unparseable output, the deterministic result is
// used instead.
type Assisted struct {
	genai         genai.ClientInterface
	deterministic *Deterministic
}

// NewAssisted creates the GenAI-backed classifier tier.
func NewAssisted(client genai.ClientInterface) *Assisted {
	return &Assisted{genai: client, deterministic: NewDeterministic()}
}

// assistedResponse is the JSON shape requested from the model.
type assistedResponse struct {
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Intent     string            `json:"intent"`
	Fields     map[string]string `json:"fields"`
}

// Classify asks the model for a best-guess extraction, degrading to the
// deterministic tier on any failure.
func (a *Assisted) Classify(ctx context.Context, req Request) (Result, error) {
	fallback, _ := a.deterministic.Classify(ctx, req)
	if a.genai == nil {
		return fallback, nil
	}

	raw, err := a.genai.GeneratePrompt(ctx, assistedSystemPrompt, a.buildUserPrompt(req))
	if err != nil {
		slog.Warn("Assisted classifier falling back to deterministic tier", "error", err, "step", req.Step)
		return fallback, nil
	}

	parsed, err := parseAssistedResponse(raw)
	if err != nil {
		slog.Warn("Assisted classifier returned unparseable output", "error", err, "step", req.Step)
		return fallback, nil
	}

	result := Result{
		Value:      parsed.Value,
		Confidence: clamp01(parsed.Confidence),
		Intent:     Intent(parsed.Intent),
		Fields:     parsed.Fields,
	}
	if result.Fields == nil {
		result.Fields = map[string]string{}
	}
	// The deterministic intent detector is authoritative when the model is silent.
	if result.Intent == IntentNone {
		result.Intent = fallback.Intent
	}
	if result.Value == "" && fallback.Value != "" {
		result.Value = fallback.Value
		result.Confidence = fallback.Confidence
	}
	return result, nil
}

// buildUserPrompt describes the expected information and recent history.
func (a *Assisted) buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Flux: %s\nÉtape: %s\nInformation attendue: %s\n", req.Flow, req.Step, expectDescription(req.Expect))
	if len(req.History) > 0 {
		b.WriteString("Historique récent:\n")
		for _, turn := range req.History {
			fmt.Fprintf(&b, "- %s: %s\n", turn.Role, turn.Text)
		}
	}
	fmt.Fprintf(&b, "Message: %s", req.Input)
	return b.String()
}

// expectDescription renders the expected field kind for the model.
func expectDescription(kind FieldKind) string {
	switch kind {
	case FieldAmount:
		return "un montant en francs (entier positif)"
	case FieldPhone:
		return "un numéro de téléphone national"
	case FieldQuantity:
		return "une quantité (entier borné)"
	case FieldAddress:
		return "une adresse ou un lieu"
	case FieldName:
		return "un nom de personne"
	default:
		return "texte libre"
	}
}

// parseAssistedResponse tolerates markdown fences around the JSON object.
func parseAssistedResponse(raw string) (*assistedResponse, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed assistedResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("decode assisted response: %w", err)
	}
	return &parsed, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
