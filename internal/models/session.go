// Package models defines session state structures for Livreo conversations.
package models

import "time"

// Step names the current position in whichever state machine owns the conversation.
type Step string

// Welcome, login and signup steps owned by the auth gateway.
const (
	StepWelcome       Step = "WELCOME"
	StepWelcomeChoice Step = "WELCOME_CHOICE"
	StepLoginPassword Step = "LOGIN_PASSWORD"

	StepSignupRole         Step = "SIGNUP_ROLE"
	StepSignupName         Step = "SIGNUP_NAME"
	StepSignupEmail        Step = "SIGNUP_EMAIL"
	StepSignupAddress      Step = "SIGNUP_ADDRESS"
	StepSignupPhone        Step = "SIGNUP_PHONE"
	StepSignupZone         Step = "SIGNUP_ZONE"
	StepSignupVehicle      Step = "SIGNUP_VEHICLE"
	StepSignupLicence      Step = "SIGNUP_LICENCE"
	StepSignupBusiness     Step = "SIGNUP_BUSINESS"
	StepSignupResponsible  Step = "SIGNUP_RESPONSIBLE"
	StepSignupRegistration Step = "SIGNUP_REGISTRATION"
	StepSignupPassword     Step = "SIGNUP_PASSWORD"
)

// StepRoleMenu is the authenticated landing step for every role.
const StepRoleMenu Step = "ROLE_MENU"

// Courier request flow steps (client role).
const (
	StepCourierPickup         Step = "COURIER_PICKUP"
	StepCourierDestination    Step = "COURIER_DESTINATION"
	StepCourierRecipientName  Step = "COURIER_RECIPIENT_NAME"
	StepCourierRecipientPhone Step = "COURIER_RECIPIENT_PHONE"
	StepCourierValue          Step = "COURIER_VALUE"
	StepCourierDescription    Step = "COURIER_DESCRIPTION"
	StepCourierRecap          Step = "COURIER_RECAP"
)

// Marketplace order flow steps (client role).
const (
	StepMarketCategory Step = "MARKET_CATEGORY"
	StepMarketMerchant Step = "MARKET_MERCHANT"
	StepMarketProduct  Step = "MARKET_PRODUCT"
	StepMarketPickup   Step = "MARKET_PICKUP"
	StepMarketPayment  Step = "MARKET_PAYMENT"
	StepMarketRecap    Step = "MARKET_RECAP"
)

// Delivery agent flow steps (courier role).
const (
	StepAgentMissionDetail Step = "AGENT_MISSION_DETAIL"
)

// Merchant back-office flow steps.
const (
	StepMerchantEmail           Step = "MERCHANT_EMAIL"
	StepMerchantPassword        Step = "MERCHANT_PASSWORD"
	StepMerchantMenu            Step = "MERCHANT_MENU"
	StepMerchantOrderStatus     Step = "MERCHANT_ORDER_STATUS"
	StepMerchantOrderAction     Step = "MERCHANT_ORDER_ACTION"
	StepMerchantCancelReason    Step = "MERCHANT_CANCEL_REASON"
	StepMerchantProducts        Step = "MERCHANT_PRODUCTS"
	StepMerchantProductName     Step = "MERCHANT_PRODUCT_NAME"
	StepMerchantProductPrice    Step = "MERCHANT_PRODUCT_PRICE"
	StepMerchantProductStock    Step = "MERCHANT_PRODUCT_STOCK"
	StepMerchantProductPick     Step = "MERCHANT_PRODUCT_PICK"
	StepMerchantProductNewPrice Step = "MERCHANT_PRODUCT_NEW_PRICE"
	StepMerchantProductNewStock Step = "MERCHANT_PRODUCT_NEW_STOCK"
	StepMerchantProductDelete   Step = "MERCHANT_PRODUCT_DELETE"
)

// Auth holds the token pair issued by the delivery platform.
// A set access token means the user is considered authenticated for routing;
// it is not re-validated until a call fails.
type Auth struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Clear drops both tokens, demoting the session to unauthenticated.
func (a *Auth) Clear() {
	a.AccessToken = ""
	a.RefreshToken = ""
}

// User identifies the authenticated platform account behind a session.
type User struct {
	Role        Role   `json:"role,omitempty"`
	RemoteID    string `json:"remote_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Draft is the mutable scratch structure accumulated across a flow's steps.
// It is cleared on completion, cancellation or explicit reset.
type Draft struct {
	// Courier request fields.
	Pickup         string `json:"pickup,omitempty"`
	Destination    string `json:"destination,omitempty"`
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientPhone string `json:"recipient_phone,omitempty"`
	DeclaredValue  int    `json:"declared_value,omitempty"`
	Description    string `json:"description,omitempty"`

	// Marketplace order fields.
	CategoryID    string `json:"category_id,omitempty"`
	CategoryName  string `json:"category_name,omitempty"`
	MerchantID    string `json:"merchant_id,omitempty"`
	MerchantName  string `json:"merchant_name,omitempty"`
	ProductID     string `json:"product_id,omitempty"`
	ProductName   string `json:"product_name,omitempty"`
	ProductPrice  int    `json:"product_price,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`

	// Fields collects wizard answers keyed by field name (signup, merchant sub-wizards).
	Fields map[string]string `json:"fields,omitempty"`
	// SignupRole is the role an in-progress signup wizard is collecting fields for.
	SignupRole Role `json:"signup_role,omitempty"`
}

// Set records a wizard answer.
func (d *Draft) Set(key, value string) {
	if d.Fields == nil {
		d.Fields = make(map[string]string)
	}
	d.Fields[key] = value
}

// Field returns a previously recorded wizard answer.
func (d *Draft) Field(key string) string {
	if d.Fields == nil {
		return ""
	}
	return d.Fields[key]
}

// Turn is one entry of the rolling conversation history.
type Turn struct {
	Role string    `json:"role"` // "user" or "assistant"
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Listing is the numbered list most recently rendered for a session.
// Selections are 1-indexed against it; the mapping is regenerated every time a
// list is shown so stale numbers from a superseded listing never resolve.
type Listing struct {
	Kind   string   `json:"kind"` // e.g. "category", "merchant", "product", "mission", "order"
	IDs    []string `json:"ids"`
	Labels []string `json:"labels"`
}

// Resolve maps a 1-indexed selection to the listed id and label.
func (l *Listing) Resolve(n int) (id, label string, ok bool) {
	if l == nil || n < 1 || n > len(l.IDs) {
		return "", "", false
	}
	return l.IDs[n-1], l.Labels[n-1], true
}

// DeliveryPhase says which leg of a mission a position update belongs to.
type DeliveryPhase string

const (
	PhasePickup   DeliveryPhase = "pickup"
	PhaseDelivery DeliveryPhase = "delivery"
)

// Context is auxiliary session state not owned by any step machine.
type Context struct {
	MissionID string        `json:"mission_id,omitempty"`
	OrderID   string        `json:"order_id,omitempty"`
	Phase     DeliveryPhase `json:"phase,omitempty"`
	Available bool          `json:"available,omitempty"`
	Location  *Coordinates  `json:"location,omitempty"`
	Listing   *Listing      `json:"listing,omitempty"`
	History   []Turn        `json:"history,omitempty"`
	// MerchantToken is the separate back-office token used by the merchant flow.
	MerchantToken string `json:"merchant_token,omitempty"`
}

// RememberTurn appends to the rolling history, keeping at most MaxHistoryTurns.
func (c *Context) RememberTurn(role, text string) {
	c.History = append(c.History, Turn{Role: role, Text: text, Time: time.Now()})
	if len(c.History) > MaxHistoryTurns {
		c.History = c.History[len(c.History)-MaxHistoryTurns:]
	}
}

// Session is the per-user conversational state, keyed by phone number.
type Session struct {
	ID        string            `json:"id"`
	Step      Step              `json:"step"`
	Auth      Auth              `json:"auth"`
	User      User              `json:"user"`
	Profile   map[string]string `json:"profile,omitempty"` // cached role profile, display only
	Draft     *Draft            `json:"draft,omitempty"`
	Context   Context           `json:"context"`
	CreatedAt time.Time         `json:"created_at"`
	LastSeen  time.Time         `json:"last_seen"`
}

// NewSession creates a session with defaults for a first-time identifier.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, Step: StepWelcome, CreatedAt: now, LastSeen: now}
}

// Authenticated reports whether the session holds an access token.
func (s *Session) Authenticated() bool {
	return s.Auth.AccessToken != ""
}

// EnsureDraft returns the session draft, creating it if absent.
func (s *Session) EnsureDraft() *Draft {
	if s.Draft == nil {
		s.Draft = &Draft{}
	}
	return s.Draft
}

// ClearDraft drops the in-progress draft.
func (s *Session) ClearDraft() {
	s.Draft = nil
}

// Reset clears draft and context. Auth and user survive unless keepAuth is false.
func (s *Session) Reset(keepAuth bool) {
	s.Draft = nil
	s.Context = Context{}
	if keepAuth {
		if s.Authenticated() {
			s.Step = StepRoleMenu
		} else {
			s.Step = StepWelcome
		}
		return
	}
	s.Auth.Clear()
	s.User = User{}
	s.Profile = nil
	s.Step = StepWelcome
}
