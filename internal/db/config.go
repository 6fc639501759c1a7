package db

import "github.com/raphaelgruber/pagewise/internal/config"

// ConfigFrom extracts the SurrealDB settings from the application config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}
}
