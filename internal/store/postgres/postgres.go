package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"rationshop/backend/internal/domain"
	"rationshop/backend/internal/store"
	"rationshop/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateShop(ctx context.Context, shop domain.Shop) error {
	email := strings.ToLower(strings.TrimSpace(shop.Email))
	if shop.ID == "" || email == "" || shop.Name == "" {
		return store.ErrValidation
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, name, location, email, contact_number, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, shop.ID, shop.Name, shop.Location, email, nullIfEmpty(shop.ContactNumber), shop.PasswordHash, shop.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetShopByEmail(ctx context.Context, email string) (*domain.Shop, error) {
	return s.getShop(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetShopByID(ctx context.Context, id string) (*domain.Shop, error) {
	return s.getShop(ctx, `WHERE id = $1`, id)
}

func (s *Store) getShop(ctx context.Context, where string, arg any) (*domain.Shop, error) {
	var shop domain.Shop
	var contact sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location, email, contact_number, password_hash, created_at
		FROM shops
	`+where, arg).Scan(&shop.ID, &shop.Name, &shop.Location, &shop.Email, &contact, &shop.PasswordHash, &shop.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	shop.ContactNumber = contact.String
	shop.CreatedAt = shop.CreatedAt.UTC()
	return &shop, nil
}

func (s *Store) ListShops(ctx context.Context) ([]domain.Shop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location, email, contact_number, created_at
		FROM shops
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shops := make([]domain.Shop, 0, 16)
	for rows.Next() {
		var shop domain.Shop
		var contact sql.NullString
		if err := rows.Scan(&shop.ID, &shop.Name, &shop.Location, &shop.Email, &contact, &shop.CreatedAt); err != nil {
			return nil, err
		}
		shop.ContactNumber = contact.String
		shop.CreatedAt = shop.CreatedAt.UTC()
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shops, nil
}

func (s *Store) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, title, price, quantity, expiry_date, barcode, location, created_at
		FROM products
		WHERE shop_id = $1
		ORDER BY title, created_at, id
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows, false)
}

func (s *Store) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.shop_id, p.title, p.price, p.quantity, p.expiry_date, p.barcode, p.location, p.created_at,
		       sh.name, sh.location
		FROM products p
		JOIN shops sh ON sh.id = p.shop_id
		ORDER BY p.title, p.created_at, p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows, true)
}

func scanProducts(rows *sql.Rows, withShop bool) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		var expiry sql.NullTime
		var barcode, location sql.NullString
		dest := []any{&p.ID, &p.ShopID, &p.Title, &p.Price, &p.Quantity, &expiry, &barcode, &location, &p.CreatedAt}
		if withShop {
			dest = append(dest, &p.ShopName, &p.ShopLocation)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if expiry.Valid {
			e := expiry.Time.UTC()
			p.ExpiryDate = &e
		}
		p.Barcode = barcode.String
		p.Location = location.String
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, productID, shopID string) (*domain.Product, error) {
	var p domain.Product
	var expiry sql.NullTime
	var barcode, location sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, title, price, quantity, expiry_date, barcode, location, created_at
		FROM products
		WHERE id = $1 AND shop_id = $2
	`, productID, shopID).Scan(&p.ID, &p.ShopID, &p.Title, &p.Price, &p.Quantity, &expiry, &barcode, &location, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if expiry.Valid {
		e := expiry.Time.UTC()
		p.ExpiryDate = &e
	}
	p.Barcode = barcode.String
	p.Location = location.String
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) error {
	if p.ID == "" || p.ShopID == "" || strings.TrimSpace(p.Title) == "" {
		return store.ErrValidation
	}
	if p.Quantity < 0 || p.Price.IsNegative() {
		return store.ErrValidation
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, title, price, quantity, expiry_date, barcode, location, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.ShopID, p.Title, p.Price, p.Quantity, nullTimePtr(p.ExpiryDate), nullIfEmpty(p.Barcode), nullIfEmpty(p.Location), p.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) error {
	if strings.TrimSpace(p.Title) == "" || p.Quantity < 0 || p.Price.IsNegative() {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET title = $3, price = $4, quantity = $5, expiry_date = $6, barcode = $7
		WHERE id = $1 AND shop_id = $2
	`, p.ID, p.ShopID, p.Title, p.Price, p.Quantity, nullTimePtr(p.ExpiryDate), nullIfEmpty(p.Barcode))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, productID, shopID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products
		WHERE id = $1 AND shop_id = $2
	`, productID, shopID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecordSale debits stock and writes the sale snapshot in one
// serializable transaction. The product row is locked for the duration
// so concurrent sales of the same product serialize on the lock.
func (s *Store) RecordSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var title string
	var price decimal.Decimal
	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT title, price, quantity
		FROM products
		WHERE id = $1 AND shop_id = $2
		FOR UPDATE
	`, req.ProductID, req.ShopID).Scan(&title, &price, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if quantity < req.QuantitySold {
		return nil, &store.InsufficientStockError{
			ProductID:    req.ProductID,
			Requested:    req.QuantitySold,
			CurrentStock: quantity,
		}
	}

	newQuantity := quantity - req.QuantitySold
	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = $3
		WHERE id = $1 AND shop_id = $2
	`, req.ProductID, req.ShopID, newQuantity)
	if err != nil {
		return nil, err
	}

	sale := domain.Sale{
		ID:             xid.New("sale"),
		ProductID:      req.ProductID,
		ShopID:         req.ShopID,
		Title:          title,
		Price:          price,
		QuantitySold:   req.QuantitySold,
		TotalCost:      price.Mul(decimal.NewFromInt(int64(req.QuantitySold))),
		SaleDate:       time.Now().UTC(),
		CustomerName:   req.CustomerName,
		PaymentMethod:  req.PaymentMethod,
		RemainingStock: newQuantity,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, product_id, shop_id, title, price, quantity_sold, total_cost, sale_date, customer_name, payment_method)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.ProductID, sale.ShopID, sale.Title, sale.Price, sale.QuantitySold, sale.TotalCost, sale.SaleDate, sale.CustomerName, sale.PaymentMethod)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.SaleResult{SaleID: sale.ID, NewQuantity: newQuantity, Sale: sale}, nil
}

func (s *Store) ListSales(ctx context.Context, shopID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.id, sa.product_id, sa.shop_id, sa.title, sa.price, sa.quantity_sold, sa.total_cost,
		       sa.sale_date, sa.customer_name, sa.payment_method,
		       COALESCE(p.quantity, 0), sh.name
		FROM sales sa
		LEFT JOIN products p ON p.id = sa.product_id
		JOIN shops sh ON sh.id = sa.shop_id
		WHERE sa.shop_id = $1
		ORDER BY sa.sale_date DESC, sa.id DESC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.ShopID, &sale.Title, &sale.Price,
			&sale.QuantitySold, &sale.TotalCost, &sale.SaleDate, &sale.CustomerName,
			&sale.PaymentMethod, &sale.RemainingStock, &sale.ShopName); err != nil {
			return nil, err
		}
		sale.SaleDate = sale.SaleDate.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// RecordTransfer moves stock between shops in one serializable
// transaction: lock and debit the source row, then credit the oldest
// same-title row at the destination or insert a fresh row there. Any
// failure rolls the whole movement back.
func (s *Store) RecordTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var fromName, fromLocation string
	err = tx.QueryRowContext(ctx, `
		SELECT name, location FROM shops WHERE id = $1
	`, req.FromShopID).Scan(&fromName, &fromLocation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var toName, toLocation string
	err = tx.QueryRowContext(ctx, `
		SELECT name, location FROM shops WHERE id = $1
	`, req.ToShopID).Scan(&toName, &toLocation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var title string
	var price decimal.Decimal
	var quantity int
	var expiry sql.NullTime
	var barcode sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT title, price, quantity, expiry_date, barcode
		FROM products
		WHERE id = $1 AND shop_id = $2
		FOR UPDATE
	`, req.ProductID, req.FromShopID).Scan(&title, &price, &quantity, &expiry, &barcode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if quantity < req.Quantity {
		return nil, &store.InsufficientStockError{
			ProductID:    req.ProductID,
			Requested:    req.Quantity,
			CurrentStock: quantity,
		}
	}

	sourceNewQuantity := quantity - req.Quantity
	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = $3
		WHERE id = $1 AND shop_id = $2
	`, req.ProductID, req.FromShopID, sourceNewQuantity)
	if err != nil {
		return nil, err
	}

	// Merge into the oldest same-title row at the destination, so the
	// merge target stays deterministic when duplicates exist.
	var destID string
	err = tx.QueryRowContext(ctx, `
		SELECT id
		FROM products
		WHERE shop_id = $1 AND title = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE
	`, req.ToShopID, title).Scan(&destID)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $2
			WHERE id = $1
		`, destID, req.Quantity)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		destID = xid.New("prod")
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, shop_id, title, price, quantity, expiry_date, barcode, location, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, destID, req.ToShopID, title, price, req.Quantity, expiry, barcode, toLocation, time.Now().UTC())
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	transfer := domain.Transfer{
		ID:               xid.New("tr"),
		FromShopID:       req.FromShopID,
		ToShopID:         req.ToShopID,
		ProductID:        req.ProductID,
		ProductName:      title,
		Quantity:         req.Quantity,
		UnitPrice:        price,
		TotalValue:       price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Notes:            req.Notes,
		TransferredBy:    req.FromShopID,
		FromShopLocation: fromLocation,
		ToShopLocation:   toLocation,
		TransferDate:     time.Now().UTC(),
		FromShopName:     fromName,
		ToShopName:       toName,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO shop_transfers (
			id, from_shop_id, to_shop_id, product_id, product_name, quantity,
			unit_price, total_value, notes, transferred_by,
			from_shop_location, to_shop_location, transfer_date
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, transfer.ID, transfer.FromShopID, transfer.ToShopID, transfer.ProductID, transfer.ProductName,
		transfer.Quantity, transfer.UnitPrice, transfer.TotalValue, nullIfEmpty(transfer.Notes),
		transfer.TransferredBy, transfer.FromShopLocation, transfer.ToShopLocation, transfer.TransferDate)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.TransferResult{
		TransferID:        transfer.ID,
		SourceNewQuantity: sourceNewQuantity,
		Transfer:          transfer,
	}, nil
}

func (s *Store) ListTransfers(ctx context.Context, shopID string) ([]domain.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.from_shop_id, t.to_shop_id, t.product_id, t.product_name, t.quantity,
		       t.unit_price, t.total_value, t.notes, t.transferred_by,
		       t.from_shop_location, t.to_shop_location, t.transfer_date,
		       fs.name, ts.name
		FROM shop_transfers t
		JOIN shops fs ON fs.id = t.from_shop_id
		JOIN shops ts ON ts.id = t.to_shop_id
		WHERE t.from_shop_id = $1 OR t.to_shop_id = $1
		ORDER BY t.transfer_date DESC, t.id DESC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, 32)
	for rows.Next() {
		var tr domain.Transfer
		var notes sql.NullString
		if err := rows.Scan(&tr.ID, &tr.FromShopID, &tr.ToShopID, &tr.ProductID, &tr.ProductName,
			&tr.Quantity, &tr.UnitPrice, &tr.TotalValue, &notes, &tr.TransferredBy,
			&tr.FromShopLocation, &tr.ToShopLocation, &tr.TransferDate,
			&tr.FromShopName, &tr.ToShopName); err != nil {
			return nil, err
		}
		tr.Notes = notes.String
		tr.TransferDate = tr.TransferDate.UTC()
		transfers = append(transfers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (s *Store) GetDashboardStats(ctx context.Context, shopID string, lowStockThreshold int, expiryWindow time.Duration) (*domain.DashboardStats, error) {
	stats := domain.DashboardStats{TotalSales: decimal.Zero}
	horizon := time.Now().UTC().Add(expiryWindow)

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE quantity <= $2),
		       COUNT(*) FILTER (WHERE expiry_date IS NOT NULL AND expiry_date >= now() AND expiry_date <= $3)
		FROM products
		WHERE shop_id = $1
	`, shopID, lowStockThreshold, horizon).Scan(&stats.TotalProducts, &stats.LowStock, &stats.ExpiringSoon)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cost), 0)
		FROM sales
		WHERE shop_id = $1
	`, shopID).Scan(&stats.TotalSales)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
