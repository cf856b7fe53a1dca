// migrate creates or updates the orders, payments, refunds and
// provider event tables.
package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/DrXenon2/BuySell-sub000/internal/config"
	"github.com/DrXenon2/BuySell-sub000/internal/modules/payments"
)

func main() {
	dsnFlag := flag.String("dsn", "", "MySQL DSN (default DB_DSN)")
	flag.Parse()

	dsn := *dsnFlag
	if dsn == "" {
		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		dsn = cfg.DBDSN
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(payments.Models()...); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	log.Printf("✓ migrated %d tables", len(payments.Models()))
}
