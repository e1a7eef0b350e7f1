package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rationshop/backend/internal/cache"
	"rationshop/backend/internal/domain"
	"rationshop/backend/internal/service"
	"rationshop/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) (*API, *AuthManager) {
	t.Helper()
	t.Setenv("SEED_SHOP_PASSWORD", "shop123")
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopDashboardCache{}, service.Config{
		AdminEmail:        "admin@rationshop.local",
		DashboardTTL:      30 * time.Second,
		LowStockThreshold: 5,
		ExpiryWindow:      30 * 24 * time.Hour,
	})
	auth := NewAuthManager("test-secret-that-is-long-enough!", time.Hour, repo)
	return New(svc, auth, "http://127.0.0.1:3000"), auth
}

func tokenFor(t *testing.T, auth *AuthManager, email, password string) string {
	t.Helper()
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("login for %s failed: %v", email, err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestRoutesRequireBearerToken(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{"/api/products", "/api/sales", "/api/transfers", "/api/dashboard", "/api/shops"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s without token, got %d", path, rec.Code)
		}
	}
}

func TestSaleEndpointDebitsStock(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, auth, "central@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", token, map[string]any{
		"product_id":    "prod-rice-central",
		"quantity_sold": 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.SaleResult
	decodeBody(t, rec, &result)
	if result.NewQuantity != 70 {
		t.Fatalf("expected new quantity 70, got %d", result.NewQuantity)
	}
	if result.Sale.CustomerName != domain.DefaultCustomerName {
		t.Fatalf("expected default customer name, got %q", result.Sale.CustomerName)
	}
}

func TestSaleEndpointReportsCurrentStockOnOversell(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, auth, "central@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", token, map[string]any{
		"product_id":    "prod-rice-central",
		"quantity_sold": 500,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Code         string `json:"code"`
		CurrentStock int    `json:"current_stock"`
	}
	decodeBody(t, rec, &body)
	if body.Code != "INSUFFICIENT_STOCK" {
		t.Fatalf("expected INSUFFICIENT_STOCK code, got %q", body.Code)
	}
	if body.CurrentStock != 100 {
		t.Fatalf("expected current stock 100, got %d", body.CurrentStock)
	}
}

func TestSaleEndpointRejectsUnknownProduct(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, auth, "central@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodPost, "/api/sales", token, map[string]any{
		"product_id":    "prod-ghost",
		"quantity_sold": 1,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &body)
	if body.Code != "PRODUCT_NOT_FOUND" {
		t.Fatalf("expected PRODUCT_NOT_FOUND code, got %q", body.Code)
	}
}

func TestTransferEndpointRejectsSelfTransfer(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, auth, "central@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodPost, "/api/transfers", token, map[string]any{
		"from_shop_id": "shop-central",
		"to_shop_id":   "shop-central",
		"product_id":   "prod-rice-central",
		"quantity":     5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &body)
	if body.Code != "INVALID_TRANSFER" {
		t.Fatalf("expected INVALID_TRANSFER code, got %q", body.Code)
	}
}

func TestTransferEndpointEnforcesOwnership(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	harborToken := tokenFor(t, auth, "harbor@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodPost, "/api/transfers", harborToken, map[string]any{
		"from_shop_id": "shop-central",
		"to_shop_id":   "shop-harbor",
		"product_id":   "prod-rice-central",
		"quantity":     5,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTransferEndpointMovesStock(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	centralToken := tokenFor(t, auth, "central@rationshop.local", "shop123")
	harborToken := tokenFor(t, auth, "harbor@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodPost, "/api/transfers", centralToken, map[string]any{
		"from_shop_id": "shop-central",
		"to_shop_id":   "shop-harbor",
		"product_id":   "prod-rice-central",
		"quantity":     20,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.TransferResult
	decodeBody(t, rec, &result)
	if result.SourceNewQuantity != 80 {
		t.Fatalf("expected source quantity 80, got %d", result.SourceNewQuantity)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/products", harborToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var products []domain.Product
	decodeBody(t, rec, &products)
	found := false
	for _, p := range products {
		if p.Title == "Rice" && p.Quantity == 20 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rice qty 20 at harbor, got %s", rec.Body.String())
	}

	// Both sides see the movement in their transfer history.
	for _, token := range []string{centralToken, harborToken} {
		rec = doJSON(t, handler, http.MethodGet, "/api/transfers-with-locations", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var transfers []domain.Transfer
		decodeBody(t, rec, &transfers)
		if len(transfers) != 1 {
			t.Fatalf("expected one transfer in history, got %d", len(transfers))
		}
		if transfers[0].ToShopLocation != "Harbor Street" {
			t.Fatalf("expected destination location snapshot, got %q", transfers[0].ToShopLocation)
		}
	}
}

func TestProductCreateRequiresAdmin(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	shopToken := tokenFor(t, auth, "central@rationshop.local", "shop123")
	adminToken := tokenFor(t, auth, "admin@rationshop.local", "admin123")

	body := map[string]any{"title": "Lentils", "price": "65", "quantity": 40}
	rec := doJSON(t, handler, http.MethodPost, "/api/products", shopToken, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin create, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/products", adminToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin create, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/all-products", shopToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin all-products, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/all-products", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin all-products, got %d", rec.Code)
	}
}

func TestShopsWithLocationExcludesCaller(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, auth, "central@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodGet, "/api/shops-with-location", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var shops []domain.Shop
	decodeBody(t, rec, &shops)
	for _, shop := range shops {
		if shop.ID == "shop-central" {
			t.Fatalf("expected caller excluded from destination listing")
		}
	}
}

func TestDashboardEndpoint(t *testing.T) {
	api, auth := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, auth, "central@rationshop.local", "shop123")

	rec := doJSON(t, handler, http.MethodGet, "/api/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats domain.DashboardStats
	decodeBody(t, rec, &stats)
	if stats.TotalProducts != 4 {
		t.Fatalf("expected 4 products on dashboard, got %d", stats.TotalProducts)
	}
	if stats.LowStock != 1 {
		t.Fatalf("expected 1 low-stock product, got %d", stats.LowStock)
	}
}

func TestLoginRateLimiting(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	var last int
	for i := 0; i < 6; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/shops/login", "", map[string]any{
			"email":    fmt.Sprintf("guess-%d@test.local", i),
			"password": "wrong",
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/shops/register", "", map[string]any{
		"name":     "Dockside Ration Store",
		"location": "Pier 4",
		"email":    "dockside@test.local",
		"password": "secret99",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Fatalf("expected access token on register")
	}

	// Duplicate registration conflicts.
	rec = doJSON(t, handler, http.MethodPost, "/api/shops/register", "", map[string]any{
		"name":     "Dockside Ration Store",
		"location": "Pier 4",
		"email":    "dockside@test.local",
		"password": "secret99",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rec.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &body)
	if body.Code != "EMAIL_TAKEN" {
		t.Fatalf("expected EMAIL_TAKEN code, got %q", body.Code)
	}
}
