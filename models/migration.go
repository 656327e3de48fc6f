package models

import (
	"log"
	"os"
	"strings"

	"bitbucket.org/reelpulse/reels_backend/config"
)

// MigrateTable runs gorm AutoMigrate for every table. Set SKIP_MIGRATIONS=1
// when the schema is managed out of band.
func MigrateTable() {
	if v := strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")); v == "1" || strings.EqualFold(v, "true") {
		log.Println("SKIP_MIGRATIONS set; skipping auto-migration")
		return
	}

	db := config.GetDB()
	if db == nil {
		log.Println("database not initialized; skipping auto-migration")
		return
	}

	err := db.AutoMigrate(
		&Workspace{},
		&WorkspaceMember{},
		&Model{},
		&Reel{},
		&ReelMetricsDaily{},
		&WebhookInbox{},
		&CronStatus{},
		&EventLog{},
	)
	if err != nil {
		log.Printf("auto-migration failed: %v", err)
		return
	}
	log.Println("auto-migration complete")
}
