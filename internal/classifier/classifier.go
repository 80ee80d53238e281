// Package classifier provides the fallback classifier invoked when input does
// not match any expected transition for the current step.
//
// The deterministic tier works without external dependencies; the assisted
// tier (assisted.go) adds GenAI extraction behind the same interface and
// degrades to the deterministic tier when unavailable.
package classifier

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/livreo/livreo/internal/models"
)

// FieldKind names the kind of value the current step expects.
type FieldKind string

const (
	FieldNone     FieldKind = ""
	FieldAmount   FieldKind = "amount"
	FieldPhone    FieldKind = "phone"
	FieldQuantity FieldKind = "quantity"
	FieldAddress  FieldKind = "address"
	FieldName     FieldKind = "name"
)

// Intent is a competing conversation intent detected in free-form input.
type Intent string

const (
	IntentNone        Intent = ""
	IntentMarketplace Intent = "marketplace"
	IntentCourier     Intent = "courier"
	IntentFollowUp    Intent = "follow_up"
)

// Request describes the classification context for one out-of-grammar input.
type Request struct {
	Input   string
	Flow    string
	Step    models.Step
	Expect  FieldKind
	History []models.Turn
}

// Result is the classifier's advisory output. Confidence is in [0,1]; the
// flow engine decides whether to accept an extracted value in place of strict
// re-prompting.
type Result struct {
	Value      string
	Confidence float64
	Intent     Intent
	Fields     map[string]string
}

// Classifier is the pluggable classification contract. The core state machine
// is tested against the deterministic implementation only.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Result, error)
}

// Validation constants for the deterministic tier.
const (
	// MinAddressLength is the minimum rune count accepted as an address.
	MinAddressLength = 3
	// MinNameLength is the minimum rune count accepted as a person name.
	MinNameLength = 2
	// MaxQuantity bounds order quantities.
	MaxQuantity = 99
	// phoneShortLength and phoneFullLength are the accepted national formats.
	phoneShortLength = 8
	phoneFullLength  = 10
)

var (
	digitsRe    = regexp.MustCompile(`\d+`)
	nonDigitsRe = regexp.MustCompile(`\D`)
)

// phonePrefixes are the accepted national mobile prefixes.
var phonePrefixes = []string{"01", "05", "07"}

// Deterministic is the keyword and format matching tier.
type Deterministic struct{}

// NewDeterministic creates the dependency-free classifier tier.
func NewDeterministic() *Deterministic {
	return &Deterministic{}
}

// Classify extracts a value matching the expected field kind and scans for a
// competing intent. It never fails.
func (d *Deterministic) Classify(ctx context.Context, req Request) (Result, error) {
	result := Result{Intent: detectIntent(req.Input), Fields: map[string]string{}}

	switch req.Expect {
	case FieldAmount:
		if v, ok := extractAmount(req.Input); ok {
			result.Value = strconv.Itoa(v)
			result.Confidence = 0.8
			result.Fields["amount"] = result.Value
		}
	case FieldPhone:
		if v, ok := extractPhone(req.Input); ok {
			result.Value = v
			result.Confidence = 0.9
			result.Fields["phone"] = v
		}
	case FieldQuantity:
		if v, ok := extractQuantity(req.Input); ok {
			result.Value = strconv.Itoa(v)
			result.Confidence = 0.8
			result.Fields["quantity"] = result.Value
		}
	case FieldAddress:
		if trimmed := strings.TrimSpace(req.Input); utf8.RuneCountInString(trimmed) >= MinAddressLength {
			result.Value = trimmed
			result.Confidence = 0.5
			result.Fields["address"] = trimmed
		}
	case FieldName:
		if trimmed := strings.TrimSpace(req.Input); utf8.RuneCountInString(trimmed) >= MinNameLength {
			result.Value = trimmed
			result.Confidence = 0.5
			result.Fields["name"] = trimmed
		}
	}

	return result, nil
}

// intentKeywords maps detectable intents to their trigger vocabularies.
var intentKeywords = map[Intent][]string{
	IntentMarketplace: {"restaurant", "commander", "commande", "acheter", "menu produit", "boutique"},
	IntentFollowUp:    {"suivre", "suivi", "statut", "status", "où est", "ou est", "track"},
	IntentCourier:     {"colis", "livrer", "coursier", "envoyer"},
}

// detectIntent scans input for intent-change vocabulary. Marketplace and
// follow-up take precedence over courier, which is the default flow anyway.
func detectIntent(input string) Intent {
	lowered := strings.ToLower(input)
	for _, intent := range []Intent{IntentMarketplace, IntentFollowUp, IntentCourier} {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(lowered, kw) {
				return intent
			}
		}
	}
	return IntentNone
}

// extractAmount pulls the first digit run as a positive amount.
func extractAmount(input string) (int, bool) {
	m := digitsRe.FindString(strings.ReplaceAll(input, " ", ""))
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// extractPhone validates a national mobile number: accepted prefix plus the
// short or full national length.
func extractPhone(input string) (string, bool) {
	digits := nonDigitsRe.ReplaceAllString(input, "")
	if len(digits) != phoneShortLength && len(digits) != phoneFullLength {
		return "", false
	}
	for _, prefix := range phonePrefixes {
		if strings.HasPrefix(digits, prefix) {
			return digits, true
		}
	}
	return "", false
}

// extractQuantity pulls a bounded positive integer.
func extractQuantity(input string) (int, bool) {
	v, ok := extractAmount(input)
	if !ok || v > MaxQuantity {
		return 0, false
	}
	return v, true
}
