package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Shop struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	Email         string    `json:"email"`
	ContactNumber string    `json:"contact_number,omitempty"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type ShopRegisterRequest struct {
	Name          string `json:"name"`
	Location      string `json:"location"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	ContactNumber string `json:"contact_number"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Shop        Shop   `json:"shop"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated shop identity derived from a verified access
// token. The core trusts ShopID; it is never taken from request bodies.
type Actor struct {
	ShopID string
	Name   string
	Email  string
}

type Product struct {
	ID         string          `json:"id"`
	ShopID     string          `json:"shop_id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	Barcode    string          `json:"barcode,omitempty"`
	Location   string          `json:"location,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	// Populated only by cross-shop listings.
	ShopName     string `json:"shop_name,omitempty"`
	ShopLocation string `json:"shop_location,omitempty"`
}

type ProductCreateRequest struct {
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	ExpiryDate string          `json:"expiry_date,omitempty"`
	Barcode    string          `json:"barcode,omitempty"`
	Location   string          `json:"location,omitempty"`
}

type ProductUpdateRequest struct {
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	ExpiryDate string          `json:"expiry_date,omitempty"`
	Barcode    string          `json:"barcode,omitempty"`
}

// Sale is the immutable record of one stock debit. Title and price are
// snapshots taken at sale time; later product edits never rewrite them.
type Sale struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	ShopID        string          `json:"shop_id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	QuantitySold  int             `json:"quantity_sold"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	SaleDate      time.Time       `json:"sale_date"`
	CustomerName  string          `json:"customer_name"`
	PaymentMethod string          `json:"payment_method"`

	// Display enrichment on listings.
	RemainingStock int    `json:"remaining_stock"`
	ShopName       string `json:"shop_name,omitempty"`
}

type SaleRequest struct {
	ShopID        string `json:"-"`
	ProductID     string `json:"product_id"`
	QuantitySold  int    `json:"quantity_sold"`
	CustomerName  string `json:"customer_name,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type SaleResult struct {
	SaleID      string `json:"sale_id"`
	NewQuantity int    `json:"new_quantity"`
	Sale        Sale   `json:"sale"`
}

// Transfer is the immutable record of one shop-to-shop stock movement.
// Product name, unit price and both shop locations are snapshots.
type Transfer struct {
	ID               string          `json:"id"`
	FromShopID       string          `json:"from_shop_id"`
	ToShopID         string          `json:"to_shop_id"`
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalValue       decimal.Decimal `json:"total_value"`
	Notes            string          `json:"notes,omitempty"`
	TransferredBy    string          `json:"transferred_by"`
	FromShopLocation string          `json:"from_shop_location"`
	ToShopLocation   string          `json:"to_shop_location"`
	TransferDate     time.Time       `json:"transfer_date"`

	// Display enrichment on listings.
	FromShopName string `json:"from_shop_name,omitempty"`
	ToShopName   string `json:"to_shop_name,omitempty"`
}

type TransferRequest struct {
	FromShopID string `json:"from_shop_id"`
	ToShopID   string `json:"to_shop_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

type TransferResult struct {
	TransferID        string   `json:"transfer_id"`
	SourceNewQuantity int      `json:"source_new_quantity"`
	Transfer          Transfer `json:"transfer"`
}

type DashboardStats struct {
	TotalProducts int             `json:"total_products"`
	LowStock      int             `json:"low_stock"`
	ExpiringSoon  int             `json:"expiring_soon"`
	TotalSales    decimal.Decimal `json:"total_sales"`
}

const (
	DefaultCustomerName  = "Anonymous"
	DefaultPaymentMethod = "Cash"
)
