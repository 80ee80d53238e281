package platform

// LoginResult is the token pair and optional role returned by POST /auth/login.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// Profile is the role-specific profile returned by the my_profile endpoints.
// Field presence depends on the role; absent fields decode to empty strings.
type Profile struct {
	ID              string `json:"id"`
	FirstName       string `json:"prenom,omitempty"`
	LastName        string `json:"nom,omitempty"`
	FullName        string `json:"nom_complet,omitempty"`
	BusinessName    string `json:"nom_entreprise,omitempty"`
	ResponsibleName string `json:"responsable,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"telephone,omitempty"`
	Address         string `json:"adresse,omitempty"`
	Zone            string `json:"zone,omitempty"`
	Vehicle         string `json:"vehicule,omitempty"`
}

// Mission statuses used by the platform. ordered from creation to completion.
const (
	MissionStatusPending   = "en_attente"
	MissionStatusAccepted  = "acceptee"
	MissionStatusStarted   = "demarree"
	MissionStatusAtPickup  = "arrivee_retrait"
	MissionStatusPickedUp  = "colis_recupere"
	MissionStatusAtDropoff = "arrivee_livraison"
	MissionStatusDelivered = "livree"
	MissionStatusCancelled = "annulee"
)

// ValidMissionStatuses is the fixed set accepted by the "statut <value>" command.
var ValidMissionStatuses = []string{
	MissionStatusPending,
	MissionStatusAccepted,
	MissionStatusStarted,
	MissionStatusAtPickup,
	MissionStatusPickedUp,
	MissionStatusAtDropoff,
	MissionStatusDelivered,
	MissionStatusCancelled,
}

// IsValidMissionStatus checks a status token against the fixed set.
func IsValidMissionStatus(s string) bool {
	for _, v := range ValidMissionStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminalMissionStatus reports whether a mission can no longer progress.
func IsTerminalMissionStatus(s string) bool {
	return s == MissionStatusDelivered || s == MissionStatusCancelled
}

// MissionRequest is the fixed payload shape of POST /missions.
type MissionRequest struct {
	Pickup         string  `json:"lieu_retrait"`
	Destination    string  `json:"lieu_livraison"`
	RecipientName  string  `json:"nom_destinataire"`
	RecipientPhone string  `json:"tel_destinataire"`
	DeclaredValue  int     `json:"valeur_declaree"`
	Description    string  `json:"description"`
	PaymentMethod  string  `json:"mode_paiement,omitempty"`
	ProductID      string  `json:"produit_id,omitempty"`
	MerchantID     string  `json:"marchand_id,omitempty"`
	PickupLat      float64 `json:"retrait_lat,omitempty"`
	PickupLng      float64 `json:"retrait_lng,omitempty"`
}

// Mission is a delivery mission as returned by the platform.
type Mission struct {
	ID             string  `json:"id"`
	Pickup         string  `json:"lieu_retrait"`
	Destination    string  `json:"lieu_livraison"`
	RecipientName  string  `json:"nom_destinataire"`
	RecipientPhone string  `json:"tel_destinataire"`
	DeclaredValue  int     `json:"valeur_declaree"`
	Description    string  `json:"description"`
	Status         string  `json:"statut"`
	PickupLat      float64 `json:"retrait_lat,omitempty"`
	PickupLng      float64 `json:"retrait_lng,omitempty"`
	DropoffLat     float64 `json:"livraison_lat,omitempty"`
	DropoffLng     float64 `json:"livraison_lng,omitempty"`
}

// Category is a marketplace category.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"nom"`
}

// Merchant is a marketplace merchant row.
type Merchant struct {
	ID   string `json:"id"`
	Name string `json:"nom_entreprise"`
	Zone string `json:"zone,omitempty"`
}

// Product is a marketplace product row.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"nom"`
	Price      int    `json:"prix"`
	Stock      int    `json:"stock"`
	MerchantID string `json:"marchand_id,omitempty"`
}

// ProductRequest is the payload for creating or updating a product.
type ProductRequest struct {
	Name  string `json:"nom"`
	Price int    `json:"prix"`
	Stock int    `json:"stock"`
}

// Order is a marketplace order seen from the merchant back office.
type Order struct {
	ID         string `json:"id"`
	ProductID  string `json:"produit_id"`
	Product    string `json:"produit,omitempty"`
	Quantity   int    `json:"quantite"`
	Total      int    `json:"total"`
	Status     string `json:"statut"`
	CustomerID string `json:"client_id,omitempty"`
}

// Order statuses used by the merchant back office.
const (
	OrderStatusPending   = "en_attente"
	OrderStatusConfirmed = "confirmee"
	OrderStatusCancelled = "annulee"
)
