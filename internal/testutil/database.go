// Package testutil provides test utilities for the points-must-flow project.
// It offers an isolated in-memory database and builders for wallet fixtures.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/service"
	"github.com/Veraticus/the-points-must-flow/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.SeedWallet(testutil.NewWalletBuilder("w1").
//		WithCard("card-a", "1", "0.01", testutil.Rule("Dining", "4")).
//		Build())
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Wallets        []model.Wallet
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}
	for _, wallet := range opts.Wallets {
		db.SeedWallet(wallet)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// SeedWallet saves every instrument of the wallet or fails the test.
func (db *TestDB) SeedWallet(wallet model.Wallet) {
	db.t.Helper()
	for _, inst := range wallet.Instruments {
		if err := db.Storage.SaveInstrument(context.Background(), inst); err != nil {
			db.t.Fatalf("failed to seed instrument %q: %v", inst.ID, err)
		}
	}
}

// SeedTransactions saves the transactions or fails the test.
func (db *TestDB) SeedTransactions(txns ...model.Transaction) {
	db.t.Helper()
	if _, err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// MustGetTransaction loads a single transaction or fails the test.
func (db *TestDB) MustGetTransaction(id string) model.Transaction {
	db.t.Helper()
	txns, err := db.Storage.GetTransactionsByIDs(context.Background(), []string{id})
	if err != nil {
		db.t.Fatalf("failed to load transaction %q: %v", id, err)
	}
	if len(txns) != 1 {
		db.t.Fatalf("transaction %q not found", id)
	}
	return txns[0]
}
