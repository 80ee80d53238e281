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

// Listing kinds rendered by the merchant back office.
const (
	listingOrders   = "order"
	listingCatalog = "mproduct"
)

// Draft field keys used by the merchant sub-wizards.
const (
	merchantFieldEmail  = "email"
	merchantFieldAction = "action"
	merchantFieldName   = "nom"
	merchantFieldPrice  = "prix"
)

// MerchantEngine serves the merchant role. The back office requires its own
// email/password login; the resulting token lives in the session context and
// is distinct from the conversation's auth tokens.
type MerchantEngine struct {
	machine
	platform *platform.Client
}

// NewMerchantEngine creates the merchant back-office engine.
func NewMerchantEngine(p *platform.Client, cls classifier.Classifier) *MerchantEngine {
	e := &MerchantEngine{platform: p}
	e.machine = machine{
		name: "merchant",
		table: transitionTable{
			models.StepRoleMenu:                e.handleMenu,
			models.StepMerchantEmail:           e.handleEmail,
			models.StepMerchantPassword:        e.handlePassword,
			models.StepMerchantMenu:            e.handleBackOfficeMenu,
			models.StepMerchantOrderStatus:     e.handleOrderStatus,
			models.StepMerchantOrderAction:     e.handleOrderAction,
			models.StepMerchantCancelReason:    e.handleCancelReason,
			models.StepMerchantProducts:        e.handleProductsMenu,
			models.StepMerchantProductName:     e.handleProductName,
			models.StepMerchantProductPrice:    e.handleProductPrice,
			models.StepMerchantProductStock:    e.handleProductStock,
			models.StepMerchantProductPick:     e.handleProductPick,
			models.StepMerchantProductNewPrice: e.handleProductNewPrice,
			models.StepMerchantProductNewStock: e.handleProductNewStock,
			models.StepMerchantProductDelete:   e.handleProductDelete,
		},
		expects: map[models.Step]classifier.FieldKind{
			models.StepMerchantProductName:     classifier.FieldName,
			models.StepMerchantProductPrice:    classifier.FieldAmount,
			models.StepMerchantProductStock:    classifier.FieldQuantity,
			models.StepMerchantProductNewPrice: classifier.FieldAmount,
			models.StepMerchantProductNewStock: classifier.FieldQuantity,
		},
		classify: cls,
	}
	return e
}

// Role implements Engine.
func (e *MerchantEngine) Role() models.Role { return models.RoleMerchant }

// Handle implements Engine.
func (e *MerchantEngine) Handle(ctx context.Context, s *models.Session, msg models.Message) (models.Reply, error) {
	return e.machine.handle(ctx, s, NewInput(msg))
}

// backOfficeAuth wraps the back-office token for platform calls. There is no
// refresh token, so an expired token surfaces as an auth error and sends the
// merchant back through the boutique login.
func backOfficeAuth(s *models.Session) models.Auth {
	return models.Auth{AccessToken: s.Context.MerchantToken}
}

func (e *MerchantEngine) handleMenu(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if s.Context.MerchantToken != "" {
		s.Step = models.StepMerchantMenu
		return e.backOfficeMenuReply(), nil
	}
	switch in.Norm {
	case "connexion boutique", "connexion", "1":
		s.Step = models.StepMerchantEmail
		return models.TextReply("Connexion à votre boutique. Quelle est votre *adresse e-mail* ?"), nil
	case "aide", "2":
		return models.ChoiceReply(
			"Depuis votre espace marchand vous pouvez suivre vos commandes et gérer votre catalogue. Connectez-vous à votre boutique pour commencer.",
			"Connexion boutique",
		), nil
	}
	return models.Reply{}, models.ErrUnknownInput
}

func (e *MerchantEngine) handleEmail(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if !strings.Contains(in.Raw, "@") {
		return models.TextReply("Cette adresse e-mail ne semble pas valide. Réessayez."), nil
	}
	s.EnsureDraft().Set(merchantFieldEmail, in.Raw)
	s.Step = models.StepMerchantPassword
	return models.TextReply("Et votre *mot de passe* ?"), nil
}

func (e *MerchantEngine) handlePassword(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	email := s.EnsureDraft().Field(merchantFieldEmail)
	result, err := e.platform.Login(ctx, email, in.Raw)
	if err != nil {
		var authErr *platform.AuthError
		if errors.As(err, &authErr) {
			s.Step = models.StepMerchantEmail
			return models.TextReply("E-mail ou mot de passe incorrect. Quelle est votre *adresse e-mail* ?"), nil
		}
		return models.Reply{}, err
	}
	s.Context.MerchantToken = result.AccessToken
	s.ClearDraft()
	s.Step = models.StepMerchantMenu
	slog.Info("Merchant back office opened", "id", s.ID)
	return e.backOfficeMenuReply(), nil
}

func (e *MerchantEngine) backOfficeMenuReply() models.Reply {
	return models.ChoiceReply("Votre boutique est ouverte. Que voulez-vous gérer ?", "Commandes", "Produits", "Retour")
}

func (e *MerchantEngine) handleBackOfficeMenu(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	switch {
	case in.Norm == "commandes" || in.Norm == "1":
		s.Step = models.StepMerchantOrderStatus
		return models.ChoiceReply("Quelles commandes voulez-vous voir ?", "En attente", "Confirmées", "Annulées"), nil
	case in.Norm == "produits" || in.Norm == "2":
		s.Step = models.StepMerchantProducts
		return e.productsMenuReply(), nil
	case IsBack(in.Norm) || in.Norm == "3":
		s.Step = models.StepRoleMenu
		return MenuReply(s), nil
	}
	return models.Reply{}, models.ErrUnknownInput
}

// orderStatusFilters maps the status menu choices to the platform filter.
var orderStatusFilters = map[string]string{
	"en attente": platform.OrderStatusPending,
	"1":          platform.OrderStatusPending,
	"confirmées": platform.OrderStatusConfirmed,
	"confirmees": platform.OrderStatusConfirmed,
	"2":          platform.OrderStatusConfirmed,
	"annulées":   platform.OrderStatusCancelled,
	"annulees":   platform.OrderStatusCancelled,
	"3":          platform.OrderStatusCancelled,
}

func (e *MerchantEngine) handleOrderStatus(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if IsBack(in.Norm) {
		s.Step = models.StepMerchantMenu
		return e.backOfficeMenuReply(), nil
	}

	// Once an order listing is on screen, numbers select an order; before
	// that, the digits 1-3 pick a status filter.
	if n, ok := ParseSelection(in.Norm); ok {
		if s.Context.Listing != nil && s.Context.Listing.Kind == listingOrders {
			id, label, found := ResolveListing(s, listingOrders, n)
			if !found {
				return InvalidSelectionReply(s), nil
			}
			s.Context.OrderID = id
			s.Step = models.StepMerchantOrderAction
			return models.ChoiceReply(fmt.Sprintf("Commande : %s. Que voulez-vous faire ?", label), "Confirmer", "Annuler", "Retour"), nil
		}
	}
	if status, ok := orderStatusFilters[in.Norm]; ok {
		return e.listOrders(ctx, s, status)
	}
	return models.Reply{}, models.ErrUnknownInput
}

func (e *MerchantEngine) listOrders(ctx context.Context, s *models.Session, status string) (models.Reply, error) {
	auth := backOfficeAuth(s)
	orders, err := e.platform.Orders(ctx, &auth, status)
	if err != nil {
		return models.Reply{}, err
	}
	if len(orders) == 0 {
		return models.ChoiceReply("Aucune commande dans cette catégorie.", "En attente", "Confirmées", "Retour"), nil
	}
	ids := make([]string, len(orders))
	labels := make([]string, len(orders))
	descriptions := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		labels[i] = fmt.Sprintf("%s ×%d", o.Product, o.Quantity)
		descriptions[i] = fmt.Sprintf("%d F · %s", o.Total, o.Status)
	}
	return RenderListing(s, listingOrders, "Commandes :", ids, labels, descriptions), nil
}

func (e *MerchantEngine) handleOrderAction(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	auth := backOfficeAuth(s)
	switch {
	case in.Norm == "confirmer" || in.Norm == "1":
		if err := e.platform.ConfirmOrder(ctx, &auth, s.Context.OrderID); err != nil {
			return models.Reply{}, err
		}
		slog.Info("Order confirmed", "id", s.ID, "order", s.Context.OrderID)
		s.Context.OrderID = ""
		s.Context.Listing = nil
		s.Step = models.StepMerchantOrderStatus
		return models.ChoiceReply("✅ Commande confirmée.", "En attente", "Confirmées", "Retour"), nil
	case in.Norm == "annuler" || in.Norm == "2":
		s.Step = models.StepMerchantCancelReason
		return models.TextReply("Quel est le *motif* de l'annulation ?"), nil
	case IsBack(in.Norm) || in.Norm == "3":
		s.Context.OrderID = ""
		s.Step = models.StepMerchantOrderStatus
		return models.ChoiceReply("Quelles commandes voulez-vous voir ?", "En attente", "Confirmées", "Annulées"), nil
	}
	return models.Reply{}, models.ErrUnknownInput
}

func (e *MerchantEngine) handleCancelReason(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if in.Raw == "" {
		return models.TextReply("Le motif ne peut pas être vide. Quel est le *motif* de l'annulation ?"), nil
	}
	auth := backOfficeAuth(s)
	if err := e.platform.CancelOrder(ctx, &auth, s.Context.OrderID, in.Raw); err != nil {
		return models.Reply{}, err
	}
	slog.Info("Order cancelled", "id", s.ID, "order", s.Context.OrderID)
	s.Context.OrderID = ""
	s.Context.Listing = nil
	s.Step = models.StepMerchantOrderStatus
	return models.ChoiceReply("Commande annulée.", "En attente", "Confirmées", "Retour"), nil
}

func (e *MerchantEngine) productsMenuReply() models.Reply {
	return models.Reply{
		Text: "Gestion du catalogue :\n" +
			"1. Liste\n2. Ajouter\n3. Modifier\n4. Supprimer\n5. Stock\n\n" +
			"Répondez avec le numéro ou le mot, ou *retour*.",
		Choices: []string{"Liste", "Ajouter", "Retour"},
	}
}

func (e *MerchantEngine) handleProductsMenu(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	switch {
	case in.Norm == "liste" || in.Norm == "1":
		return e.listProducts(ctx, s, "Vos produits :")
	case in.Norm == "ajouter" || in.Norm == "2":
		s.ClearDraft()
		s.Step = models.StepMerchantProductName
		return models.TextReply("Quel est le *nom* du produit ?"), nil
	case in.Norm == "modifier" || in.Norm == "3":
		return e.startProductPick(ctx, s, "modifier")
	case in.Norm == "supprimer" || in.Norm == "4":
		return e.startProductPick(ctx, s, "supprimer")
	case in.Norm == "stock" || in.Norm == "5":
		return e.startProductPick(ctx, s, "stock")
	case IsBack(in.Norm):
		s.Step = models.StepMerchantMenu
		return e.backOfficeMenuReply(), nil
	}
	return models.Reply{}, models.ErrUnknownInput
}

func (e *MerchantEngine) listProducts(ctx context.Context, s *models.Session, title string) (models.Reply, error) {
	auth := backOfficeAuth(s)
	products, err := e.platform.Products(ctx, &auth, "")
	if err != nil {
		return models.Reply{}, err
	}
	if len(products) == 0 {
		return models.ChoiceReply("Votre catalogue est vide.", "Ajouter", "Retour"), nil
	}
	ids := make([]string, len(products))
	labels := make([]string, len(products))
	descriptions := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
		labels[i] = p.Name
		descriptions[i] = fmt.Sprintf("%d F · stock %d", p.Price, p.Stock)
	}
	return RenderListing(s, listingCatalog, title, ids, labels, descriptions), nil
}

// startProductPick renders the catalogue and records which action the picked
// product is for.
func (e *MerchantEngine) startProductPick(ctx context.Context, s *models.Session, action string) (models.Reply, error) {
	reply, err := e.listProducts(ctx, s, "Quel produit ?")
	if err != nil {
		return models.Reply{}, err
	}
	if s.Context.Listing == nil || s.Context.Listing.Kind != listingCatalog {
		return reply, nil // empty catalogue, stay on the products menu
	}
	s.EnsureDraft().Set(merchantFieldAction, action)
	s.Step = models.StepMerchantProductPick
	return reply, nil
}

func (e *MerchantEngine) handleProductName(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if in.Raw == "" {
		return models.TextReply("Le nom ne peut pas être vide. Quel est le *nom* du produit ?"), nil
	}
	s.EnsureDraft().Set(merchantFieldName, in.Raw)
	s.Step = models.StepMerchantProductPrice
	return models.TextReply("Quel est son *prix* (en francs) ?"), nil
}

func (e *MerchantEngine) handleProductPrice(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	price, err := strconv.Atoi(in.Norm)
	if err != nil || price <= 0 {
		return models.Reply{}, models.ErrUnknownInput
	}
	s.EnsureDraft().Set(merchantFieldPrice, strconv.Itoa(price))
	s.Step = models.StepMerchantProductStock
	return models.TextReply("Quelle est la *quantité en stock* ?"), nil
}

func (e *MerchantEngine) handleProductStock(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	stock, err := strconv.Atoi(in.Norm)
	if err != nil || stock < 0 {
		return models.Reply{}, models.ErrUnknownInput
	}
	draft := s.EnsureDraft()
	price, _ := strconv.Atoi(draft.Field(merchantFieldPrice))
	auth := backOfficeAuth(s)
	product, err := e.platform.CreateProduct(ctx, &auth, platform.ProductRequest{
		Name:  draft.Field(merchantFieldName),
		Price: price,
		Stock: stock,
	})
	if err != nil {
		return models.Reply{}, err
	}
	slog.Info("Product created", "id", s.ID, "product", product.ID)
	s.ClearDraft()
	s.Step = models.StepMerchantProducts
	return models.ChoiceReply(fmt.Sprintf("✅ Produit *%s* ajouté au catalogue.", product.Name), "Liste", "Ajouter", "Retour"), nil
}

func (e *MerchantEngine) handleProductPick(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	if IsBack(in.Norm) {
		s.ClearDraft()
		s.Step = models.StepMerchantProducts
		return e.productsMenuReply(), nil
	}
	n, ok := ParseSelection(in.Norm)
	if !ok {
		return models.Reply{}, models.ErrUnknownInput
	}
	id, label, found := ResolveListing(s, listingCatalog, n)
	if !found {
		return InvalidSelectionReply(s), nil
	}
	draft := s.EnsureDraft()
	draft.ProductID = id
	draft.ProductName = label
	switch draft.Field(merchantFieldAction) {
	case "modifier":
		s.Step = models.StepMerchantProductNewPrice
		return models.TextReply(fmt.Sprintf("Nouveau *prix* pour %s ?", label)), nil
	case "supprimer":
		s.Step = models.StepMerchantProductDelete
		return models.ChoiceReply(fmt.Sprintf("Supprimer définitivement *%s* ?", label), "Confirmer", "Annuler"), nil
	case "stock":
		s.Step = models.StepMerchantProductNewStock
		return models.TextReply(fmt.Sprintf("Nouveau *stock* pour %s ?", label)), nil
	}
	s.Step = models.StepMerchantProducts
	return e.productsMenuReply(), nil
}

func (e *MerchantEngine) handleProductNewPrice(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	price, err := strconv.Atoi(in.Norm)
	if err != nil || price <= 0 {
		return models.Reply{}, models.ErrUnknownInput
	}
	s.EnsureDraft().Set(merchantFieldPrice, strconv.Itoa(price))
	s.Step = models.StepMerchantProductNewStock
	return models.TextReply("Et le nouveau *stock* ?"), nil
}

func (e *MerchantEngine) handleProductNewStock(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	stock, err := strconv.Atoi(in.Norm)
	if err != nil || stock < 0 {
		return models.Reply{}, models.ErrUnknownInput
	}
	draft := s.EnsureDraft()
	auth := backOfficeAuth(s)

	if draft.Field(merchantFieldAction) == "stock" {
		if err := e.platform.UpdateStock(ctx, &auth, draft.ProductID, stock); err != nil {
			return models.Reply{}, err
		}
		slog.Info("Product stock updated", "id", s.ID, "product", draft.ProductID, "stock", stock)
	} else {
		price, _ := strconv.Atoi(draft.Field(merchantFieldPrice))
		req := platform.ProductRequest{Name: draft.ProductName, Price: price, Stock: stock}
		if err := e.platform.UpdateProduct(ctx, &auth, draft.ProductID, req); err != nil {
			return models.Reply{}, err
		}
		slog.Info("Product updated", "id", s.ID, "product", draft.ProductID)
	}

	name := draft.ProductName
	s.ClearDraft()
	s.Step = models.StepMerchantProducts
	return models.ChoiceReply(fmt.Sprintf("✅ Produit *%s* mis à jour.", name), "Liste", "Retour"), nil
}

func (e *MerchantEngine) handleProductDelete(ctx context.Context, s *models.Session, in Input) (models.Reply, error) {
	draft := s.EnsureDraft()
	switch {
	case IsConfirm(in.Norm):
		auth := backOfficeAuth(s)
		if err := e.platform.DeleteProduct(ctx, &auth, draft.ProductID); err != nil {
			return models.Reply{}, err
		}
		slog.Info("Product deleted", "id", s.ID, "product", draft.ProductID)
		name := draft.ProductName
		s.ClearDraft()
		s.Step = models.StepMerchantProducts
		return models.ChoiceReply(fmt.Sprintf("Produit *%s* supprimé.", name), "Liste", "Retour"), nil
	case IsCancel(in.Norm):
		s.ClearDraft()
		s.Step = models.StepMerchantProducts
		return e.productsMenuReply(), nil
	}
	return models.ChoiceReply(fmt.Sprintf("Supprimer définitivement *%s* ?", draft.ProductName), "Confirmer", "Annuler"), nil
}
