package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"relations-go/internal/config"
	"relations-go/internal/storage"
)

var dbSeq atomic.Int64

// SetupTestDB creates an in-memory sqlite DB and runs AutoMigrate.
// Each call gets its own named database so fixtures stay isolated, while
// the connection pool within one fixture shares a single database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"), dbSeq.Add(1))
	db, err := storage.InitDB(config.DatabaseConfig{
		Type:   "sqlite",
		DBName: dsn,
	})
	require.NoError(t, err, "SetupTestDB: InitDB")
	require.NoError(t, storage.AutoMigrateTables(db), "SetupTestDB: AutoMigrate")
	return db
}
