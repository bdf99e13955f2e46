package app

import (
	"fmt"
	"os"
	"time"

	"taskdesk/internal/auth"
	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
)

// Env is an opened workspace: migrated database, loaded config, engine.
type Env struct {
	Engine engine.Engine
	Config *config.Config
	close  func() error
}

func (e *Env) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

// Open prepares a workspace for use: ensures the directory, opens the
// database, applies migrations and loads settings. The JWT secret must be
// supplied by the environment; there is no fallback.
func Open(workspace string) (*Env, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	signer, err := signerFromEnv(cfg.TokenTTL())
	if err != nil {
		conn.Close()
		return nil, err
	}
	eng := engine.New(conn, signer)
	return &Env{Engine: eng, Config: cfg, close: conn.Close}, nil
}

func signerFromEnv(ttl time.Duration) (*auth.Signer, error) {
	secret := os.Getenv("TASKDESK_JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("TASKDESK_JWT_SECRET is required")
	}
	return auth.NewSigner(secret, ttl)
}
