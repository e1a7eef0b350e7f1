// Package store defines the persistence contract for the ration shop
// ledger and the errors its implementations report.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rationshop/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrConflict          = errors.New("store: conflict")
	ErrValidation        = errors.New("store: validation failed")
	ErrInvalidTransfer   = errors.New("store: invalid transfer")
	ErrInsufficientStock = errors.New("store: insufficient stock")
)

// InsufficientStockError carries the stock level observed inside the
// transaction that rejected a sale or transfer.
type InsufficientStockError struct {
	ProductID    string
	Requested    int
	CurrentStock int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("store: insufficient stock for product %s: requested %d, have %d",
		e.ProductID, e.Requested, e.CurrentStock)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository is the full persistence surface. Multi-row mutations
// (RecordSale, RecordTransfer) are atomic: they either apply every
// write or none.
type Repository interface {
	CreateShop(ctx context.Context, shop domain.Shop) error
	GetShopByEmail(ctx context.Context, email string) (*domain.Shop, error)
	GetShopByID(ctx context.Context, id string) (*domain.Shop, error)
	ListShops(ctx context.Context) ([]domain.Shop, error)

	ListProducts(ctx context.Context, shopID string) ([]domain.Product, error)
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID, shopID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) error
	UpdateProduct(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, productID, shopID string) error

	RecordSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleResult, error)
	ListSales(ctx context.Context, shopID string) ([]domain.Sale, error)

	RecordTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	ListTransfers(ctx context.Context, shopID string) ([]domain.Transfer, error)

	GetDashboardStats(ctx context.Context, shopID string, lowStockThreshold int, expiryWindow time.Duration) (*domain.DashboardStats, error)
}
