package flow

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/livreo/livreo/internal/classifier"
	"github.com/livreo/livreo/internal/models"
	"github.com/livreo/livreo/internal/platform"
)

// Listing kinds rendered by the marketplace flow.
const (
	listingCategories = "category"
	listingMerchants  = "merchant"
	listingProducts   = "product"
)

// PaymentMethods is the exact set accepted at the payment step.
var PaymentMethods = []string{"cash", "mobile money", "virement"}

// MarketplaceFlow is the marketplace order conversation: category, merchant
// and product selection, pickup location, payment method, then recap and a
// mission created from the marketplace fields.
type MarketplaceFlow struct {
	platform *platform.Client
}

// NewMarketplaceFlow creates the marketplace order flow.
func NewMarketplaceFlow(p *platform.Client) *MarketplaceFlow {
	return &MarketplaceFlow{platform: p}
}

// Start resets the draft and renders the category list.
func (f *MarketplaceFlow) Start(ctx context.Context, s *models.Session) (models.Reply, error) {
	categories, err := f.platform.Categories(ctx, &s.Auth)
	if err != nil {
		return models.Reply{}, err
	}
	if len(categories) == 0 {
		s.Step = models.StepRoleMenu
		return models.TextReply("Aucune catégorie disponible pour le moment. Tapez *menu* pour revenir."), nil
	}
	s.Draft = &models.Draft{}
	s.Step = models.StepMarketCategory
	ids := make([]string, len(categories))
	labels := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
		labels[i] = c.Name
	}
	return RenderListing(s, listingCategories, "Choisissez une catégorie :", ids, labels, nil), nil
}

func (f *MarketplaceFlow) steps() transitionTable {
	return transitionTable{
		models.StepMarketCategory: f.handleCategory,
		models.StepMarketMerchant: f.handleMerchant,
		models.StepMarketProduct:  f.handleProduct,
		models.StepMarketPickup:   f.handlePickup,
		models.StepMarketPayment:  f.handlePayment,
		models.StepMarketRecap:    f.handleRecap,
	}
}

func (f *MarketplaceFlow) expects() map[models.Step]classifier.FieldKind {
	return map[models.Step]classifier.FieldKind{
		models.StepMarketCategory: classifier.FieldQuantity,
		models.StepMarketMerchant: classifier.FieldQuantity,
		models.StepMarketProduct:  classifier.FieldQuantity,
		models.StepMarketPickup:   classifier.FieldAddress,
	}
}

func (f *MarketplaceFlow) handleCategory(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	n, ok := ParseSelection(in.Norm)
	if !ok {
		return models.Reply{}, models.ErrUnknownInput
	}
	id, label, ok := ResolveListing(s, listingCategories, n)
	if !ok {
		return InvalidSelectionReply(s), nil
	}
	d := s.EnsureDraft()
	d.CategoryID = id
	d.CategoryName = label

	merchants, err := f.platform.Merchants(ctx, &s.Auth, id)
	if err != nil {
		return models.Reply{}, err
	}
	if len(merchants) == 0 {
		return models.TextReply(fmt.Sprintf("Aucun marchand dans la catégorie %s pour le moment. Choisissez une autre catégorie.", label)), nil
	}
	s.Step = models.StepMarketMerchant
	ids := make([]string, len(merchants))
	labels := make([]string, len(merchants))
	descriptions := make([]string, len(merchants))
	for i, m := range merchants {
		ids[i] = m.ID
		labels[i] = m.Name
		descriptions[i] = m.Zone
	}
	return RenderListing(s, listingMerchants, fmt.Sprintf("Marchands — %s :", label), ids, labels, descriptions), nil
}

func (f *MarketplaceFlow) handleMerchant(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	n, ok := ParseSelection(in.Norm)
	if !ok {
		return models.Reply{}, models.ErrUnknownInput
	}
	id, label, ok := ResolveListing(s, listingMerchants, n)
	if !ok {
		return InvalidSelectionReply(s), nil
	}
	d := s.EnsureDraft()
	d.MerchantID = id
	d.MerchantName = label

	products, err := f.platform.Products(ctx, &s.Auth, id)
	if err != nil {
		return models.Reply{}, err
	}
	if len(products) == 0 {
		return models.TextReply(fmt.Sprintf("%s n'a aucun produit disponible. Choisissez un autre marchand.", label)), nil
	}
	s.Step = models.StepMarketProduct
	ids := make([]string, len(products))
	labels := make([]string, len(products))
	descriptions := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
		labels[i] = p.Name
		descriptions[i] = fmt.Sprintf("%d F", p.Price)
	}
	return RenderListing(s, listingProducts, fmt.Sprintf("Produits — %s :", label), ids, labels, descriptions), nil
}

func (f *MarketplaceFlow) handleProduct(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	n, ok := ParseSelection(in.Norm)
	if !ok {
		return models.Reply{}, models.ErrUnknownInput
	}
	id, label, ok := ResolveListing(s, listingProducts, n)
	if !ok {
		return InvalidSelectionReply(s), nil
	}
	d := s.EnsureDraft()
	d.ProductID = id
	d.ProductName = label
	s.Step = models.StepMarketPickup
	return models.LocationReply("Où devons-nous vous livrer ? Envoyez l'adresse ou partagez votre position."), nil
}

func (f *MarketplaceFlow) handlePickup(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	d := s.EnsureDraft()
	switch {
	case in.Location != nil:
		d.Destination = fmt.Sprintf("%.6f,%.6f", in.Location.Latitude, in.Location.Longitude)
	case utf8.RuneCountInString(in.Raw) >= MinPlaceLength:
		d.Destination = in.Raw
	default:
		return models.Reply{}, models.ErrUnknownInput
	}
	s.Step = models.StepMarketPayment
	return models.ChoiceReply("Quel mode de paiement ?", "Cash", "Mobile money", "Virement"), nil
}

func (f *MarketplaceFlow) handlePayment(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	method := ""
	for _, m := range PaymentMethods {
		if in.Norm == m {
			method = m
			break
		}
	}
	if method == "" {
		return models.ChoiceReply("Mode de paiement non reconnu. Choisissez : cash, mobile money ou virement.", "Cash", "Mobile money", "Virement"), nil
	}
	s.EnsureDraft().PaymentMethod = method
	s.Step = models.StepMarketRecap
	return f.recapReply(s), nil
}

func (f *MarketplaceFlow) recapReply(s *models.Session) models.Reply {
	d := s.EnsureDraft()
	text := fmt.Sprintf(
		"Récapitulatif de votre commande :\n"+
			"- Catégorie : %s\n"+
			"- Marchand : %s\n"+
			"- Produit : %s\n"+
			"- Livraison : %s\n"+
			"- Paiement : %s",
		d.CategoryName, d.MerchantName, d.ProductName, d.Destination, d.PaymentMethod,
	)
	return models.ChoiceReply(text, "Confirmer", "Annuler")
}

func (f *MarketplaceFlow) handleRecap(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	switch {
	case IsConfirm(in.Norm):
		d := s.EnsureDraft()
		// Marketplace orders reuse the mission creation call: the merchant is
		// the pickup side, the client's location the delivery side.
		req := platform.MissionRequest{
			Pickup:        d.MerchantName,
			Destination:   d.Destination,
			Description:   d.ProductName,
			PaymentMethod: d.PaymentMethod,
			ProductID:     d.ProductID,
			MerchantID:    d.MerchantID,
		}
		mission, err := f.platform.CreateMission(ctx, &s.Auth, req)
		if err != nil {
			return models.Reply{}, err
		}
		slog.Info("Marketplace mission created", "id", s.ID, "mission", mission.ID, "merchant", d.MerchantID)
		s.ClearDraft()
		s.Step = models.StepRoleMenu
		return models.TextReply(fmt.Sprintf("✅ Commande n° %s enregistrée chez %s. Vous serez livré à : %s. Tapez *menu* pour continuer.", mission.ID, d.MerchantName, d.Destination)), nil

	case IsCancel(in.Norm):
		s.ClearDraft()
		s.Step = models.StepRoleMenu
		return MenuReply(s), nil
	}
	return f.recapReply(s), nil
}
