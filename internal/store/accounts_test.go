package store_test

import (
	"context"
	"errors"
	"testing"

	"orbvale/internal/store"
	"orbvale/internal/testutil"
)

func TestDebitInsufficientFunds(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.EnsureAccount(ctx, "p1", "Pia", 500); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if _, err := st.Debit(ctx, "p1", 1000, "spin_bet", "machine", "m1"); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Debit error = %v, want ErrInsufficientFunds", err)
	}
	bal, err := st.GetBalance(ctx, "p1")
	if err != nil || bal != 500 {
		t.Fatalf("balance = %d (%v), want untouched 500", bal, err)
	}
}

func TestCreditDebitRoundTrip(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.EnsureAccount(ctx, "p1", "Pia", 1000); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	bal, err := st.Credit(ctx, "p1", 250, "trade_receive", "trade", "t1")
	if err != nil || bal != 1250 {
		t.Fatalf("credit = %d (%v), want 1250", bal, err)
	}
	bal, err = st.Debit(ctx, "p1", 50, "table_bet", "table", "tb1")
	if err != nil || bal != 1200 {
		t.Fatalf("debit = %d (%v), want 1200", bal, err)
	}
}

func TestInventoryRoundTrip(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.EnsureAccount(ctx, "p1", "Pia", 0); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if err := st.SetInventory(ctx, "p1", store.Inventory{"hat_red": 2}); err != nil {
		t.Fatalf("set inventory: %v", err)
	}
	inv, err := st.GetInventory(ctx, "p1")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if inv["hat_red"] != 2 {
		t.Fatalf("inventory = %v, want hat_red=2", inv)
	}
}

func TestGetBalanceUnknownPlayer(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()

	if _, err := st.GetBalance(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
