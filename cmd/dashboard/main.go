package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/vidrelay/vidrelay/internal/config"
	"github.com/vidrelay/vidrelay/internal/dashboard"
	"github.com/vidrelay/vidrelay/internal/store"
)

func main() {
	// Optional .env, same as the server.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}

	if err := dashboard.Run(st); err != nil {
		log.Fatalf("dashboard: %v", err)
	}
}
