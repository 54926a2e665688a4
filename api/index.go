package handler

import (
	"log"
	"net/http"

	"github.com/arnavshah/workload-api-go/pkg/auth"
	"github.com/arnavshah/workload-api-go/pkg/config"
	"github.com/arnavshah/workload-api-go/pkg/database"
	"github.com/arnavshah/workload-api-go/pkg/server"
	"github.com/gin-gonic/gin"
)

var r *gin.Engine

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	cfg.GinMode = gin.ReleaseMode
	if err := cfg.RequireSecrets(); err != nil {
		log.Fatalf("refusing to start: %v", err)
	}

	db := database.InitDB(cfg)
	_ = auth.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword)

	r = server.New(cfg, db, database.InitRedis(cfg.RedisURL))
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
