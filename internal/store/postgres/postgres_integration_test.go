package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/bondedhq/link-server/internal/store"
	"github.com/bondedhq/link-server/internal/store/storetest"
)

func makePGStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("LINK_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LINK_POSTGRES_DSN not set; skipping postgres store integration test")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	if err := Bootstrap(context.Background(), db); err != nil {
		t.Fatalf("postgres bootstrap: %v", err)
	}
	return NewWithDB(db)
}

func TestPostgresStore_Compliance(t *testing.T) {
	storetest.Run(t, makePGStore)
}
