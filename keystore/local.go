package keystore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalOrigin scopes durable rows written from the command line.
const LocalOrigin = "cli"

// LocalTiers returns the tier chain used outside the browser:
//
//	durable   sqlite kv_store row (skipped when db is nil)
//	user      <home>/.ctxeng/credentials.toml
//	runtime   per-user file under the OS temp dir, lost on reboot
func LocalTiers(db *sql.DB, home string) []Tier {
	var tiers []Tier
	if db != nil {
		tiers = append(tiers, NewSQLTier(db, LocalOrigin))
	}
	if home != "" {
		tiers = append(tiers, NewFileTier("user", filepath.Join(home, ".ctxeng", "credentials.toml")))
	}
	tiers = append(tiers, NewFileTier("runtime", RuntimePath()))
	return tiers
}

// NewLocalStore builds the CLI store over LocalTiers.
func NewLocalStore(db *sql.DB, home string, log *zap.SugaredLogger) *Store {
	return New(log, LocalTiers(db, home)...)
}

// RuntimePath is the per-user runtime credential file.
func RuntimePath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("ctxeng-%d", os.Getuid()), "credentials.toml")
}
