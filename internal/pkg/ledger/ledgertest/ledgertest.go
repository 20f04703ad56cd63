// Package ledgertest opens throwaway in-memory ledgers for tests.
package ledgertest

import (
	"testing"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/config"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := ledger.Open(config.Database{Driver: "sqlite", Url: ":memory:", AutoMigrate: true})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDb, err := db.DB(); err == nil {
			_ = sqlDb.Close()
		}
	})
	return db
}

func NewStore(t testing.TB) *ledger.GormStore {
	t.Helper()
	return ledger.NewGormStore(NewDB(t))
}
