// Package platform provides the authenticated HTTP client for the delivery
// platform REST API.
//
// All authenticated calls send a bearer access token. A 401 triggers exactly
// one token refresh and one retried call; a second 401 surfaces as AuthError.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/livreo/livreo/internal/models"
)

// Constants for platform client configuration.
const (
	// DefaultTimeout bounds every HTTP call to the platform.
	DefaultTimeout = 15 * time.Second
	// maxResponseBytes bounds response bodies read into memory.
	maxResponseBytes = 2 << 20
)

// Opts holds configuration options for the platform client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Option defines a configuration option for the platform client.
type Option func(*Opts)

// WithBaseURL sets the platform API base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient injects a custom HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client is the typed client over the delivery platform REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a platform client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Platform NewClient options set", "base_url_set", cfg.BaseURL != "", "custom_http", cfg.HTTPClient != nil)

	if cfg.BaseURL == "" {
		slog.Error("Platform base URL not set")
		return nil, fmt.Errorf("platform base URL not set")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid platform base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: httpClient}, nil
}

// remoteErrorBody is the platform's error envelope.
type remoteErrorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// attempt performs one HTTP round trip and returns status plus raw body.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// do performs an authenticated call with the single permitted refresh-and-retry.
// auth may be nil for unauthenticated endpoints. On persistent refresh failure
// the token pair is cleared, demoting the session to unauthenticated.
func (c *Client) do(ctx context.Context, method, path string, body any, auth *models.Auth, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	token := ""
	if auth != nil {
		token = auth.AccessToken
	}

	status, respBody, err := c.attempt(ctx, method, path, payload, token)
	if err != nil {
		slog.Error("Platform request transport failure", "method", method, "path", path, "error", err)
		return &TransportError{Err: err}
	}

	if status == http.StatusUnauthorized && auth != nil {
		if auth.RefreshToken == "" {
			slog.Debug("Platform 401 with no refresh token", "path", path)
			return &AuthError{Reason: "missing or expired token"}
		}
		slog.Debug("Platform 401, attempting token refresh", "path", path)
		newAccess, refreshErr := c.refreshAccessToken(ctx, auth.RefreshToken)
		if refreshErr != nil {
			slog.Error("Platform token refresh failed, demoting session", "path", path, "error", refreshErr)
			auth.Clear()
			return &AuthError{Reason: "token refresh failed"}
		}
		auth.AccessToken = newAccess

		status, respBody, err = c.attempt(ctx, method, path, payload, newAccess)
		if err != nil {
			return &TransportError{Err: err}
		}
		if status == http.StatusUnauthorized {
			slog.Error("Platform still unauthorized after refresh", "path", path)
			return &AuthError{Reason: "unauthorized after token refresh"}
		}
	} else if status == http.StatusUnauthorized {
		return &AuthError{Reason: "invalid credentials"}
	}

	if status == http.StatusConflict {
		var envelope remoteErrorBody
		_ = json.Unmarshal(respBody, &envelope)
		return &ConflictError{Message: envelope.Message}
	}
	if status >= 400 {
		var envelope remoteErrorBody
		_ = json.Unmarshal(respBody, &envelope)
		slog.Error("Platform request failed", "method", method, "path", path, "status", status, "message", envelope.Message)
		return &RemoteError{StatusCode: status, Message: envelope.Message, Fields: envelope.Errors}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// refreshAccessToken exchanges a refresh token for a fresh access token.
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return "", err
	}
	status, body, err := c.attempt(ctx, http.MethodPost, "/auth/refresh", payload, "")
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if status >= 400 {
		return "", fmt.Errorf("refresh rejected with status %d", status)
	}
	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("refresh response missing access token")
	}
	return result.AccessToken, nil
}

// Login authenticates a user with POST /auth/login.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	slog.Debug("Platform Login invoked", "username", username)
	var result LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil, &result)
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, &AuthError{Reason: "login response missing access token"}
	}
	return &result, nil
}

// MyProfile fetches the role-specific profile of the authenticated user.
func (c *Client) MyProfile(ctx context.Context, auth *models.Auth, role models.Role) (*Profile, error) {
	var profile Profile
	path := fmt.Sprintf("/auth/%ss/my_profile", role)
	if err := c.do(ctx, http.MethodGet, path, nil, auth, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Signup creates a role account with POST /auth/{role}s.
// Structural field errors surface as RemoteError with per-field sub-errors.
func (c *Client) Signup(ctx context.Context, role models.Role, fields map[string]string, password string) error {
	payload := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["password"] = password
	path := fmt.Sprintf("/auth/%ss", role)
	return c.do(ctx, http.MethodPost, path, payload, nil, nil)
}

// CreateMission issues the create-mission call shared by the courier and
// marketplace flows.
func (c *Client) CreateMission(ctx context.Context, auth *models.Auth, req MissionRequest) (*Mission, error) {
	var mission Mission
	if err := c.do(ctx, http.MethodPost, "/missions", req, auth, &mission); err != nil {
		return nil, err
	}
	return &mission, nil
}

// AvailableMissions lists missions open for acceptance.
func (c *Client) AvailableMissions(ctx context.Context, auth *models.Auth) ([]Mission, error) {
	var missions []Mission
	if err := c.do(ctx, http.MethodGet, "/missions/available", nil, auth, &missions); err != nil {
		return nil, err
	}
	return missions, nil
}

// MyMissions lists the missions assigned to the authenticated courier.
func (c *Client) MyMissions(ctx context.Context, auth *models.Auth) ([]Mission, error) {
	var missions []Mission
	if err := c.do(ctx, http.MethodGet, "/missions/mine", nil, auth, &missions); err != nil {
		return nil, err
	}
	return missions, nil
}

// Mission fetches one mission by id.
func (c *Client) Mission(ctx context.Context, auth *models.Auth, id string) (*Mission, error) {
	var mission Mission
	if err := c.do(ctx, http.MethodGet, "/missions/"+url.PathEscape(id), nil, auth, &mission); err != nil {
		return nil, err
	}
	return &mission, nil
}

// AcceptMission claims a mission for the authenticated courier.
// A concurrent acceptance surfaces as ConflictError.
func (c *Client) AcceptMission(ctx context.Context, auth *models.Auth, id string) error {
	return c.do(ctx, http.MethodPost, "/missions/"+url.PathEscape(id)+"/accept", nil, auth, nil)
}

// UpdateDeliveryStatus records a status transition on a delivery.
func (c *Client) UpdateDeliveryStatus(ctx context.Context, auth *models.Auth, id, status string) error {
	return c.do(ctx, http.MethodPost, "/deliveries/"+url.PathEscape(id)+"/update_statut", map[string]string{"statut": status}, auth, nil)
}

// UpdateDeliveryPosition records courier coordinates for the pickup or
// delivery leg of a mission.
func (c *Client) UpdateDeliveryPosition(ctx context.Context, auth *models.Auth, id string, phase models.DeliveryPhase, lat, lng float64) error {
	return c.do(ctx, http.MethodPost, "/deliveries/"+url.PathEscape(id)+"/update_position", map[string]any{
		"phase": string(phase),
		"lat":   lat,
		"lng":   lng,
	}, auth, nil)
}

// SetAvailability toggles the courier's online/offline availability.
func (c *Client) SetAvailability(ctx context.Context, auth *models.Auth, available bool) error {
	return c.do(ctx, http.MethodPost, "/couriers/availability", map[string]bool{"disponible": available}, auth, nil)
}

// Categories lists marketplace categories.
func (c *Client) Categories(ctx context.Context, auth *models.Auth) ([]Category, error) {
	var categories []Category
	if err := c.do(ctx, http.MethodGet, "/marketplace/categories", nil, auth, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Merchants lists marketplace merchants, optionally filtered by category.
func (c *Client) Merchants(ctx context.Context, auth *models.Auth, categoryID string) ([]Merchant, error) {
	path := "/marketplace/marchands"
	if categoryID != "" {
		path += "?categorie=" + url.QueryEscape(categoryID)
	}
	var merchants []Merchant
	if err := c.do(ctx, http.MethodGet, path, nil, auth, &merchants); err != nil {
		return nil, err
	}
	return merchants, nil
}

// Products lists a merchant's marketplace products.
func (c *Client) Products(ctx context.Context, auth *models.Auth, merchantID string) ([]Product, error) {
	path := "/marketplace/produits"
	if merchantID != "" {
		path += "?marchand=" + url.QueryEscape(merchantID)
	}
	var products []Product
	if err := c.do(ctx, http.MethodGet, path, nil, auth, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// Orders lists marketplace orders, optionally filtered by status.
func (c *Client) Orders(ctx context.Context, auth *models.Auth, status string) ([]Order, error) {
	path := "/marketplace/commandes"
	if status != "" {
		path += "?statut=" + url.QueryEscape(status)
	}
	var orders []Order
	if err := c.do(ctx, http.MethodGet, path, nil, auth, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ConfirmOrder confirms a pending order.
func (c *Client) ConfirmOrder(ctx context.Context, auth *models.Auth, id string) error {
	return c.do(ctx, http.MethodPost, "/marketplace/commandes/"+url.PathEscape(id)+"/confirm", nil, auth, nil)
}

// CancelOrder cancels an order with a merchant-supplied reason.
func (c *Client) CancelOrder(ctx context.Context, auth *models.Auth, id, reason string) error {
	return c.do(ctx, http.MethodPost, "/marketplace/commandes/"+url.PathEscape(id)+"/cancel", map[string]string{"motif": reason}, auth, nil)
}

// CreateProduct adds a product to the merchant's catalogue.
func (c *Client) CreateProduct(ctx context.Context, auth *models.Auth, req ProductRequest) (*Product, error) {
	var product Product
	if err := c.do(ctx, http.MethodPost, "/marketplace/produits", req, auth, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct updates an existing product.
func (c *Client) UpdateProduct(ctx context.Context, auth *models.Auth, id string, req ProductRequest) error {
	return c.do(ctx, http.MethodPut, "/marketplace/produits/"+url.PathEscape(id), req, auth, nil)
}

// DeleteProduct removes a product from the catalogue.
func (c *Client) DeleteProduct(ctx context.Context, auth *models.Auth, id string) error {
	return c.do(ctx, http.MethodDelete, "/marketplace/produits/"+url.PathEscape(id), nil, auth, nil)
}

// UpdateStock sets the stock level of a product.
func (c *Client) UpdateStock(ctx context.Context, auth *models.Auth, id string, stock int) error {
	return c.do(ctx, http.MethodPost, "/marketplace/produits/"+url.PathEscape(id)+"/update_stock", map[string]int{"stock": stock}, auth, nil)
}
