package main

import (
	"flag"
	"log"

	"github.com/fompt/backend/internal/database"
	"github.com/spf13/viper"
)

func main() {
	action := flag.String("action", "up", "migration action: up or down")
	path := flag.String("path", "migrations", "path to migration files")
	flag.Parse()

	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	databaseURL := database.GetConfig().URL()

	switch *action {
	case "up":
		if err := database.RunMigrations(databaseURL, *path); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations applied")
	case "down":
		if err := database.RollbackMigrations(databaseURL, *path); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rolled back one migration")
	default:
		log.Fatalf("Unknown action %q, expected up or down", *action)
	}
}
