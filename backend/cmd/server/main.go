package main

import (
	"embed"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"audiobook-forge/backend/internal/api"
	"audiobook-forge/backend/internal/config"
)

//go:embed dist
var distFS embed.FS

func main() {
	// Set Release Mode to silence debug warnings
	gin.SetMode(gin.ReleaseMode)

	// API keys come from the environment; .env is a convenience for dev.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// Setup Logging
	f, _ := os.OpenFile("server.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	w := io.MultiWriter(f, os.Stdout)
	log.SetOutput(w)
	gin.DefaultWriter = w

	log.Println("----------------------------------------")
	log.Println("Starting Audiobook Forge Backend")
	log.Println("----------------------------------------")

	// Load Configuration
	cfg := config.Load()
	for _, dir := range []string{cfg.DataDir, cfg.UploadDir, cfg.OutputDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	// Initialize Router
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	// Get the subtree "dist" because go:embed keeps the top dir
	frontendFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		log.Printf("[WARNING] Frontend files not found in embed (dist): %v", err)
		frontendFS = nil
	} else if _, err := frontendFS.Open("index.html"); err != nil {
		log.Printf("[WARNING] index.html not found in embedded dist: %v", err)
		frontendFS = nil
	} else {
		log.Printf("[INFO] Frontend embedded filesystem loaded successfully.")
	}

	// Setup Routes
	server := api.NewServer(cfg)
	server.SetupRoutes(r, frontendFS)

	// Start Server
	log.Printf("Server starting on port %s...", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
