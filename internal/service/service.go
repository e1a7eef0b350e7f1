// Package service is the inventory core: it enforces who may act on
// which shop's stock and delegates the atomic ledger mutations to the
// repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"rationshop/backend/internal/cache"
	"rationshop/backend/internal/domain"
	"rationshop/backend/internal/store"
	"rationshop/backend/internal/xid"
)

// ErrForbidden is returned when the authenticated shop may not perform
// the requested operation.
var ErrForbidden = errors.New("service: forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Config struct {
	AdminEmail        string
	DashboardTTL      time.Duration
	LowStockThreshold int
	ExpiryWindow      time.Duration
}

type Service struct {
	repo store.Repository
	dash cache.DashboardCache
	cfg  Config
}

func New(repo store.Repository, dash cache.DashboardCache, cfg Config) *Service {
	if dash == nil {
		dash = cache.NoopDashboardCache{}
	}
	if cfg.DashboardTTL < time.Second {
		cfg.DashboardTTL = 30 * time.Second
	}
	if cfg.LowStockThreshold < 0 {
		cfg.LowStockThreshold = 5
	}
	if cfg.ExpiryWindow < time.Hour {
		cfg.ExpiryWindow = 30 * 24 * time.Hour
	}

	return &Service{repo: repo, dash: dash, cfg: cfg}
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ShopID == "" {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) isAdmin(actor domain.Actor) bool {
	return s.cfg.AdminEmail != "" && strings.EqualFold(actor.Email, s.cfg.AdminEmail)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, actor.ShopID)
}

func (s *Service) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if !s.isAdmin(actor) {
		return nil, ErrForbidden
	}
	return s.repo.ListAllProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if !s.isAdmin(actor) {
		return domain.Product{}, ErrForbidden
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return domain.Product{}, fmt.Errorf("%w: title required", store.ErrValidation)
	}
	if !req.Price.IsPositive() {
		return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrValidation)
	}
	if req.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must not be negative", store.ErrValidation)
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.Product{}, err
	}

	shop, err := s.repo.GetShopByID(ctx, actor.ShopID)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:         xid.New("prod"),
		ShopID:     actor.ShopID,
		Title:      req.Title,
		Price:      req.Price,
		Quantity:   req.Quantity,
		ExpiryDate: expiry,
		Barcode:    strings.TrimSpace(req.Barcode),
		Location:   shop.Location,
		CreatedAt:  time.Now().UTC(),
	}
	if req.Location != "" {
		product.Location = strings.TrimSpace(req.Location)
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.invalidateDashboard(ctx, actor.ShopID)
	log.Printf("[service] product created shop=%s product=%s title=%q qty=%d", actor.ShopID, product.ID, product.Title, product.Quantity)

	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", store.ErrValidation)
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return domain.Product{}, fmt.Errorf("%w: title required", store.ErrValidation)
	}
	if !req.Price.IsPositive() {
		return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrValidation)
	}
	if req.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must not be negative", store.ErrValidation)
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, productID, actor.ShopID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	updated.Title = req.Title
	updated.Price = req.Price
	updated.Quantity = req.Quantity
	updated.ExpiryDate = expiry
	updated.Barcode = strings.TrimSpace(req.Barcode)

	if err := s.repo.UpdateProduct(ctx, updated); err != nil {
		return domain.Product{}, err
	}
	s.invalidateDashboard(ctx, actor.ShopID)

	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	actor, err := s.actor(ctx)
	if err != nil {
		return err
	}
	if productID == "" {
		return fmt.Errorf("%w: product id required", store.ErrValidation)
	}
	if err := s.repo.DeleteProduct(ctx, productID, actor.ShopID); err != nil {
		return err
	}
	s.invalidateDashboard(ctx, actor.ShopID)
	return nil
}

// RecordSale validates the request and applies the debit-and-snapshot
// atomically through the repository. The shop id always comes from the
// authenticated actor.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	req.ShopID = actor.ShopID
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return nil, fmt.Errorf("%w: product id required", store.ErrValidation)
	}
	if req.QuantitySold < 1 {
		return nil, fmt.Errorf("%w: quantity sold must be positive", store.ErrValidation)
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		req.CustomerName = domain.DefaultCustomerName
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		req.PaymentMethod = domain.DefaultPaymentMethod
	}

	result, err := s.repo.RecordSale(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx, actor.ShopID)
	log.Printf("[service] sale recorded shop=%s product=%s qty=%d remaining=%d", actor.ShopID, req.ProductID, req.QuantitySold, result.NewQuantity)

	return result, nil
}

// RecordTransfer moves stock from the actor's shop to another shop.
// Only the owning shop may initiate the movement.
func (s *Service) RecordTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	req.FromShopID = strings.TrimSpace(req.FromShopID)
	req.ToShopID = strings.TrimSpace(req.ToShopID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.FromShopID == "" || req.ToShopID == "" || req.ProductID == "" {
		return nil, fmt.Errorf("%w: from shop, to shop and product ids required", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: transfer quantity must be positive", store.ErrValidation)
	}
	if req.FromShopID == req.ToShopID {
		return nil, fmt.Errorf("%w: source and destination shop are the same", store.ErrInvalidTransfer)
	}
	if req.FromShopID != actor.ShopID {
		return nil, ErrForbidden
	}

	result, err := s.repo.RecordTransfer(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx, req.FromShopID, req.ToShopID)
	log.Printf("[service] transfer recorded from=%s to=%s product=%s qty=%d", req.FromShopID, req.ToShopID, req.ProductID, req.Quantity)

	return result, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, actor.ShopID)
}

func (s *Service) ListTransfers(ctx context.Context) ([]domain.Transfer, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransfers(ctx, actor.ShopID)
}

func (s *Service) ListShops(ctx context.Context) ([]domain.Shop, error) {
	return s.repo.ListShops(ctx)
}

// ListTransferDestinations returns every shop except the caller's own,
// for picking where a transfer should go.
func (s *Service) ListTransferDestinations(ctx context.Context) ([]domain.Shop, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	shops, err := s.repo.ListShops(ctx)
	if err != nil {
		return nil, err
	}
	others := make([]domain.Shop, 0, len(shops))
	for _, shop := range shops {
		if shop.ID == actor.ShopID {
			continue
		}
		others = append(others, shop)
	}
	return others, nil
}

func (s *Service) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	key := dashboardCacheKey(actor.ShopID)
	if cached, ok, err := s.dash.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: dashboard cache read shop=%s: %v", actor.ShopID, err)
	} else if ok {
		return cached, nil
	}

	stats, err := s.repo.GetDashboardStats(ctx, actor.ShopID, s.cfg.LowStockThreshold, s.cfg.ExpiryWindow)
	if err != nil {
		return nil, err
	}
	if err := s.dash.Set(ctx, key, stats, s.cfg.DashboardTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write shop=%s: %v", actor.ShopID, err)
	}
	return stats, nil
}

func (s *Service) invalidateDashboard(ctx context.Context, shopIDs ...string) {
	keys := make([]string, 0, len(shopIDs))
	for _, id := range shopIDs {
		keys = append(keys, dashboardCacheKey(id))
	}
	if err := s.dash.Delete(ctx, keys...); err != nil {
		log.Printf("[service] WARN: dashboard cache invalidate shops=%v: %v", shopIDs, err)
	}
}

func dashboardCacheKey(shopID string) string {
	return "dashboard:" + shopID
}

// parseExpiry accepts an empty string or a YYYY-MM-DD date.
func parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry date must be YYYY-MM-DD", store.ErrValidation)
	}
	t = t.UTC()
	return &t, nil
}
