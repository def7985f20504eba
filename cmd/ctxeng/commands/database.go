package commands

import (
	"database/sql"
	"os"

	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/db"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
)

// loadConfig loads the configuration cascade and validates it.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDB is swapped in tests to count opens.
var openDB = db.OpenWithMigrations

// openDatabase opens and migrates the database at dbPath, or at the
// configured path when dbPath is empty.
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, string, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}
	database, err := openDB(dbPath, logger.Logger.Named("db"))
	if err != nil {
		return nil, dbPath, err
	}
	return database, dbPath, nil
}

// localState is what the key and send commands share: one database handle
// (nil when it failed to open) and the credential store built on it.
type localState struct {
	db    *sql.DB
	store *keystore.Store
}

// openLocal opens the database once and builds the CLI credential store.
// The durable tier is used only when keystore.durable is on; a database
// failure degrades to the file tiers.
func openLocal(cfg *am.Config) *localState {
	log := logger.Logger.Named("keystore")

	database, _, err := openDatabase(cfg, "")
	if err != nil {
		if cfg.Keystore.Durable {
			log.Warnw("Durable key tier unavailable", logger.FieldError, err)
		} else {
			log.Debugw("Database unavailable", logger.FieldError, err)
		}
		database = nil
	}

	var durable *sql.DB
	if cfg.Keystore.Durable {
		durable = database
	}
	home := ""
	if cfg.Keystore.UserFile {
		home, _ = os.UserHomeDir()
	}
	return &localState{db: database, store: keystore.NewLocalStore(durable, home, log)}
}

// Close releases the database handle, if any.
func (l *localState) Close() {
	if l.db != nil {
		l.db.Close()
	}
}

// resolveAPIKey prefers the stored credential and falls back to
// openrouter.api_key from configuration or the environment.
func resolveAPIKey(cfg *am.Config, store *keystore.Store) (key, source string) {
	if key, tier, ok := keystore.LoadCredential(store); ok {
		return key, tier
	}
	if cfg.OpenRouter.APIKey != "" {
		return cfg.OpenRouter.APIKey, "config"
	}
	return "", ""
}
