package gateway

import (
	"fmt"
	"log"

	"workshop-scan-backend/internal/db"
)

// Disconnect closes the record-store connection. Subsequent operations
// fail until Reconnect.
func (g *gormGateway) Disconnect() error {
	log.Println("Disconnecting from record store.")
	sqlDB, err := g.conn().DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for disconnect: %w", err)
	}
	return sqlDB.Close()
}

// Reconnect closes the current connection (ignoring close errors from an
// already-dead link) and establishes a fresh one.
func (g *gormGateway) Reconnect() error {
	log.Println("Reconnecting to record store.")
	if err := g.Disconnect(); err != nil {
		log.Printf("Warning: close during reconnect failed: %v", err)
	}

	fresh, err := db.Init(&g.cfg.Database)
	if err != nil {
		return fmt.Errorf("reconnect failed: %w", err)
	}

	g.mu.Lock()
	g.db = fresh
	g.mu.Unlock()
	return nil
}
