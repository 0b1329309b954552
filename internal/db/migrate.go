package db

import (
	"diagnostic-service/internal/diagnostic"
	"log"

	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB) {
	err := db.AutoMigrate(
		&diagnostic.Diagnostic{},
		&diagnostic.DiagnosticDocument{},
	)

	if err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}
