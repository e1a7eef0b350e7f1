package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"rationshop/backend/internal/domain"
	"rationshop/backend/internal/store"
	"rationshop/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	shopsByID     map[string]domain.Shop
	shopsByEmail  map[string]string
	productsByID  map[string]domain.Product
	salesByID     map[string]domain.Sale
	transfersByID map[string]domain.Transfer
}

func New() *Store {
	return &Store{
		shopsByID:     make(map[string]domain.Shop),
		shopsByEmail:  make(map[string]string),
		productsByID:  make(map[string]domain.Product),
		salesByID:     make(map[string]domain.Sale),
		transfersByID: make(map[string]domain.Transfer),
	}
}

// seedShops builds the initial in-memory shop accounts for dev/demo mode.
// Credentials are read from SEED_SHOP_PASSWORD and SEED_ADMIN_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedShops() []domain.Shop {
	shopPwd := envOr("SEED_SHOP_PASSWORD", "shop123")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_SHOP_PASSWORD") == "" || os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_SHOP_PASSWORD and SEED_ADMIN_PASSWORD to override.")
	}

	now := time.Now().UTC()
	shops := make([]domain.Shop, 0, 3)
	for _, s := range []struct {
		id       string
		name     string
		location string
		email    string
		contact  string
		password string
	}{
		{"shop-central", "Central Ration Store", "Market Road", "central@rationshop.local", "555-0101", shopPwd},
		{"shop-harbor", "Harbor Ration Store", "Harbor Street", "harbor@rationshop.local", "555-0102", shopPwd},
		{"shop-admin", "District Supply Office", "Civil Lines", "admin@rationshop.local", "555-0100", adminPwd},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", s.email, err)
		}
		shops = append(shops, domain.Shop{
			ID:            s.id,
			Name:          s.name,
			Location:      s.location,
			Email:         s.email,
			ContactNumber: s.contact,
			PasswordHash:  string(hash),
			CreatedAt:     now,
		})
	}
	return shops
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, shop := range seedShops() {
		s.shopsByID[shop.ID] = shop
		s.shopsByEmail[shop.Email] = shop.ID
	}

	soon := now.AddDate(0, 0, 14)
	later := now.AddDate(0, 6, 0)
	products := []domain.Product{
		{ID: "prod-rice-central", ShopID: "shop-central", Title: "Rice", Price: decimal.NewFromInt(50), Quantity: 100, ExpiryDate: &later, Barcode: "8901001", Location: "Market Road", CreatedAt: now},
		{ID: "prod-wheat-central", ShopID: "shop-central", Title: "Wheat Flour", Price: decimal.NewFromInt(38), Quantity: 80, ExpiryDate: &later, Barcode: "8901002", Location: "Market Road", CreatedAt: now},
		{ID: "prod-sugar-central", ShopID: "shop-central", Title: "Sugar", Price: decimal.NewFromInt(42), Quantity: 60, Barcode: "8901003", Location: "Market Road", CreatedAt: now},
		{ID: "prod-oil-central", ShopID: "shop-central", Title: "Cooking Oil", Price: decimal.NewFromFloat(112.5), Quantity: 4, ExpiryDate: &soon, Barcode: "8901004", Location: "Market Road", CreatedAt: now},
		{ID: "prod-sugar-harbor", ShopID: "shop-harbor", Title: "Sugar", Price: decimal.NewFromInt(42), Quantity: 25, Barcode: "8901003", Location: "Harbor Street", CreatedAt: now},
		{ID: "prod-salt-harbor", ShopID: "shop-harbor", Title: "Salt", Price: decimal.NewFromInt(12), Quantity: 200, Barcode: "8901005", Location: "Harbor Street", CreatedAt: now},
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
	}

	return s
}

func (s *Store) CreateShop(_ context.Context, shop domain.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(shop.Email))
	if shop.ID == "" || email == "" || shop.Name == "" {
		return store.ErrValidation
	}
	if _, exists := s.shopsByEmail[email]; exists {
		return store.ErrConflict
	}
	shop.Email = email
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	s.shopsByID[shop.ID] = shop
	s.shopsByEmail[email] = shop.ID
	return nil
}

func (s *Store) GetShopByEmail(_ context.Context, email string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.shopsByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !exists {
		return nil, store.ErrNotFound
	}
	shop := s.shopsByID[id]
	return &shop, nil
}

func (s *Store) GetShopByID(_ context.Context, id string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, exists := s.shopsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyShop := shop
	return &copyShop, nil
}

func (s *Store) ListShops(_ context.Context) ([]domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]domain.Shop, 0, len(s.shopsByID))
	for _, shop := range s.shopsByID {
		shops = append(shops, shop)
	}
	slices.SortFunc(shops, func(a, b domain.Shop) int {
		return cmpString(a.Name, b.Name)
	})
	return shops, nil
}

func (s *Store) ListProducts(_ context.Context, shopID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.productsByID {
		if p.ShopID != shopID {
			continue
		}
		products = append(products, cloneProduct(p))
	}
	sortProductsByTitle(products)
	return products, nil
}

func (s *Store) ListAllProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		dup := cloneProduct(p)
		if shop, ok := s.shopsByID[p.ShopID]; ok {
			dup.ShopName = shop.Name
			dup.ShopLocation = shop.Location
		}
		products = append(products, dup)
	}
	sortProductsByTitle(products)
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, productID, shopID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.productsByID[productID]
	if !exists || p.ShopID != shopID {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" || p.ShopID == "" || strings.TrimSpace(p.Title) == "" {
		return store.ErrValidation
	}
	if p.Quantity < 0 || p.Price.IsNegative() {
		return store.ErrValidation
	}
	if _, exists := s.shopsByID[p.ShopID]; !exists {
		return store.ErrNotFound
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.productsByID[p.ID] = cloneProduct(p)
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[p.ID]
	if !exists || existing.ShopID != p.ShopID {
		return store.ErrNotFound
	}
	if strings.TrimSpace(p.Title) == "" || p.Quantity < 0 || p.Price.IsNegative() {
		return store.ErrValidation
	}
	p.Location = existing.Location
	p.CreatedAt = existing.CreatedAt
	s.productsByID[p.ID] = cloneProduct(p)
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, productID, shopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.productsByID[productID]
	if !exists || p.ShopID != shopID {
		return store.ErrNotFound
	}
	delete(s.productsByID, productID)
	return nil
}

func (s *Store) RecordSale(_ context.Context, req domain.SaleRequest) (*domain.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[req.ProductID]
	if !exists || product.ShopID != req.ShopID {
		return nil, store.ErrNotFound
	}
	if product.Quantity < req.QuantitySold {
		return nil, &store.InsufficientStockError{
			ProductID:    req.ProductID,
			Requested:    req.QuantitySold,
			CurrentStock: product.Quantity,
		}
	}

	product.Quantity -= req.QuantitySold
	s.productsByID[product.ID] = product

	sale := domain.Sale{
		ID:             xid.New("sale"),
		ProductID:      product.ID,
		ShopID:         req.ShopID,
		Title:          product.Title,
		Price:          product.Price,
		QuantitySold:   req.QuantitySold,
		TotalCost:      product.Price.Mul(decimal.NewFromInt(int64(req.QuantitySold))),
		SaleDate:       time.Now().UTC(),
		CustomerName:   req.CustomerName,
		PaymentMethod:  req.PaymentMethod,
		RemainingStock: product.Quantity,
	}
	s.salesByID[sale.ID] = sale

	return &domain.SaleResult{
		SaleID:      sale.ID,
		NewQuantity: product.Quantity,
		Sale:        sale,
	}, nil
}

func (s *Store) ListSales(_ context.Context, shopID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if sale.ShopID != shopID {
			continue
		}
		if shop, ok := s.shopsByID[sale.ShopID]; ok {
			sale.ShopName = shop.Name
		}
		if p, ok := s.productsByID[sale.ProductID]; ok {
			sale.RemainingStock = p.Quantity
		} else {
			sale.RemainingStock = 0
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) RecordTransfer(_ context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromShop, exists := s.shopsByID[req.FromShopID]
	if !exists {
		return nil, store.ErrNotFound
	}
	toShop, exists := s.shopsByID[req.ToShopID]
	if !exists {
		return nil, store.ErrNotFound
	}

	source, exists := s.productsByID[req.ProductID]
	if !exists || source.ShopID != req.FromShopID {
		return nil, store.ErrNotFound
	}
	if source.Quantity < req.Quantity {
		return nil, &store.InsufficientStockError{
			ProductID:    req.ProductID,
			Requested:    req.Quantity,
			CurrentStock: source.Quantity,
		}
	}

	source.Quantity -= req.Quantity
	s.productsByID[source.ID] = source

	// Credit the oldest product row at the destination with the same
	// title, or create a fresh row located at the destination shop.
	dest, found := s.oldestProductByTitle(source.Title, req.ToShopID)
	if found {
		dest.Quantity += req.Quantity
		s.productsByID[dest.ID] = dest
	} else {
		dest = domain.Product{
			ID:        xid.New("prod"),
			ShopID:    req.ToShopID,
			Title:     source.Title,
			Price:     source.Price,
			Quantity:  req.Quantity,
			Barcode:   source.Barcode,
			Location:  toShop.Location,
			CreatedAt: time.Now().UTC(),
		}
		if source.ExpiryDate != nil {
			expiry := *source.ExpiryDate
			dest.ExpiryDate = &expiry
		}
		s.productsByID[dest.ID] = dest
	}

	transfer := domain.Transfer{
		ID:               xid.New("tr"),
		FromShopID:       req.FromShopID,
		ToShopID:         req.ToShopID,
		ProductID:        source.ID,
		ProductName:      source.Title,
		Quantity:         req.Quantity,
		UnitPrice:        source.Price,
		TotalValue:       source.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Notes:            req.Notes,
		TransferredBy:    req.FromShopID,
		FromShopLocation: fromShop.Location,
		ToShopLocation:   toShop.Location,
		TransferDate:     time.Now().UTC(),
		FromShopName:     fromShop.Name,
		ToShopName:       toShop.Name,
	}
	s.transfersByID[transfer.ID] = transfer

	return &domain.TransferResult{
		TransferID:        transfer.ID,
		SourceNewQuantity: source.Quantity,
		Transfer:          transfer,
	}, nil
}

func (s *Store) ListTransfers(_ context.Context, shopID string) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.Transfer, 0, 32)
	for _, tr := range s.transfersByID {
		if tr.FromShopID != shopID && tr.ToShopID != shopID {
			continue
		}
		if shop, ok := s.shopsByID[tr.FromShopID]; ok {
			tr.FromShopName = shop.Name
		}
		if shop, ok := s.shopsByID[tr.ToShopID]; ok {
			tr.ToShopName = shop.Name
		}
		transfers = append(transfers, tr)
	}
	slices.SortFunc(transfers, func(a, b domain.Transfer) int {
		if a.TransferDate.Equal(b.TransferDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.TransferDate.After(b.TransferDate) {
			return -1
		}
		return 1
	})
	return transfers, nil
}

func (s *Store) GetDashboardStats(_ context.Context, shopID string, lowStockThreshold int, expiryWindow time.Duration) (*domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	horizon := now.Add(expiryWindow)
	stats := domain.DashboardStats{TotalSales: decimal.Zero}

	for _, p := range s.productsByID {
		if p.ShopID != shopID {
			continue
		}
		stats.TotalProducts++
		if p.Quantity <= lowStockThreshold {
			stats.LowStock++
		}
		if p.ExpiryDate != nil && !p.ExpiryDate.Before(now) && !p.ExpiryDate.After(horizon) {
			stats.ExpiringSoon++
		}
	}
	for _, sale := range s.salesByID {
		if sale.ShopID != shopID {
			continue
		}
		stats.TotalSales = stats.TotalSales.Add(sale.TotalCost)
	}

	return &stats, nil
}

// oldestProductByTitle finds the earliest-created product row at the
// given shop whose title matches, breaking created_at ties by ID so the
// merge target is deterministic.
func (s *Store) oldestProductByTitle(title, shopID string) (domain.Product, bool) {
	var best domain.Product
	found := false
	for _, p := range s.productsByID {
		if p.ShopID != shopID || p.Title != title {
			continue
		}
		if !found || p.CreatedAt.Before(best.CreatedAt) ||
			(p.CreatedAt.Equal(best.CreatedAt) && p.ID < best.ID) {
			best = p
			found = true
		}
	}
	return best, found
}

func sortProductsByTitle(products []domain.Product) {
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Title == b.Title {
			if a.CreatedAt.Equal(b.CreatedAt) {
				return cmpString(a.ID, b.ID)
			}
			if a.CreatedAt.Before(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return cmpString(a.Title, b.Title)
	})
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.ExpiryDate != nil {
		expiry := src.ExpiryDate.UTC()
		dup.ExpiryDate = &expiry
	}
	return dup
}
