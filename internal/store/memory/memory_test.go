package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rationshop/backend/internal/domain"
	"rationshop/backend/internal/store"
)

func TestRecordTransferMergesIntoOldestDuplicateRow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Two rows with the same title at the destination; the older one
	// must receive the merge.
	older := time.Now().UTC().Add(-48 * time.Hour)
	newer := time.Now().UTC().Add(-1 * time.Hour)
	for _, p := range []domain.Product{
		{ID: "prod-wheat-harbor-old", ShopID: "shop-harbor", Title: "Wheat Flour", Price: decimal.NewFromInt(38), Quantity: 10, CreatedAt: older},
		{ID: "prod-wheat-harbor-new", ShopID: "shop-harbor", Title: "Wheat Flour", Price: decimal.NewFromInt(40), Quantity: 5, CreatedAt: newer},
	} {
		if err := s.CreateProduct(ctx, p); err != nil {
			t.Fatalf("create product %s: %v", p.ID, err)
		}
	}

	if _, err := s.RecordTransfer(ctx, domain.TransferRequest{
		FromShopID: "shop-central",
		ToShopID:   "shop-harbor",
		ProductID:  "prod-wheat-central",
		Quantity:   7,
	}); err != nil {
		t.Fatalf("record transfer: %v", err)
	}

	oldRow, err := s.GetProduct(ctx, "prod-wheat-harbor-old", "shop-harbor")
	if err != nil {
		t.Fatalf("get old row: %v", err)
	}
	if oldRow.Quantity != 17 {
		t.Fatalf("expected merge into oldest row (qty 17), got %d", oldRow.Quantity)
	}
	newRow, err := s.GetProduct(ctx, "prod-wheat-harbor-new", "shop-harbor")
	if err != nil {
		t.Fatalf("get new row: %v", err)
	}
	if newRow.Quantity != 5 {
		t.Fatalf("expected newer row untouched (qty 5), got %d", newRow.Quantity)
	}
}

func TestRecordTransferUnknownDestinationShopFailsBeforeDebit(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.RecordTransfer(ctx, domain.TransferRequest{
		FromShopID: "shop-central",
		ToShopID:   "shop-ghost",
		ProductID:  "prod-rice-central",
		Quantity:   20,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	rice, err := s.GetProduct(ctx, "prod-rice-central", "shop-central")
	if err != nil {
		t.Fatalf("get rice: %v", err)
	}
	if rice.Quantity != 100 {
		t.Fatalf("expected source untouched at 100, got %d", rice.Quantity)
	}
}

func TestCreateShopRejectsDuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	shop := domain.Shop{ID: "shop-a", Name: "A", Location: "L", Email: "a@test.local", PasswordHash: "x"}
	if err := s.CreateShop(ctx, shop); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	shop.ID = "shop-b"
	if err := s.CreateShop(ctx, shop); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetProductScopesToOwningShop(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.GetProduct(ctx, "prod-rice-central", "shop-harbor"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for foreign shop read, got %v", err)
	}
}
