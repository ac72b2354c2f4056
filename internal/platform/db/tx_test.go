package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeTx satisfies pgx.Tx; calling any method panics.
type fakeTx struct{ pgx.Tx }

func TestConnFromContext_Empty(t *testing.T) {
	if q := ConnFromContext(context.Background()); q != nil {
		t.Errorf("expected nil querier, got %T", q)
	}
}

func TestConnFromContext_IgnoresForeignValues(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not a tx")
	if q := ConnFromContext(ctx); q != nil {
		t.Errorf("expected nil querier for non-tx value, got %T", q)
	}
}

func TestRunInTx_ReusesOuterTransaction(t *testing.T) {
	// The pool is never touched on the nested path.
	ctx := context.WithValue(context.Background(), txKey, fakeTx{})
	called := false
	err := RunInTx(ctx, nil, func(inner context.Context) error {
		called = true
		if ConnFromContext(inner) == nil {
			t.Error("expected inner context to carry the outer transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to run")
	}
}
