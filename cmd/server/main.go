package main

import (
	"log"

	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/config"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/server"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if err := cfg.RequireSecrets(); err != nil {
		if cfg.GinMode == gin.ReleaseMode {
			log.Fatalf("refusing to start: %v", err)
		}
		log.Printf("warning: %v; tokens and integration keys are not secure", err)
	}

	db := database.InitDB(cfg)
	if err := auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Printf("could not create default admin: %v", err)
	}
	rdb := database.InitRedis(cfg.RedisURL)

	r := server.New(cfg, db, rdb)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
