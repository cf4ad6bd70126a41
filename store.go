/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"time"

	"github.com/Seednode/namegame/lobby"
	"github.com/Seednode/namegame/lobby/sqlite"
)

type sessionStore interface {
	lobby.Store
	Close() error
}

func openStore(cfg *Config) (sessionStore, error) {
	switch cfg.store {
	case storeSQLite:
		store, err := sqlite.Open(cfg.database)
		if err != nil {
			return nil, err
		}
		logf(cfg, "STORE: Using sqlite database %s", cfg.database)

		return store, nil
	default:
		logf(cfg, "STORE: Using in-memory sessions")

		return lobby.NewMemoryStore(), nil
	}
}

// reapSessions periodically purges sessions idle longer than the session timeout.
func reapSessions(ctx context.Context, cfg *Config, store lobby.Store) {
	if cfg.sessionTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.Purge(ctx, time.Now().Add(-cfg.sessionTimeout))
			if err != nil {
				errorf("purge idle sessions: %v", err)
				continue
			}
			if purged > 0 {
				logf(cfg, "STORE: Purged %d idle session(s)", purged)
			}
		}
	}
}
