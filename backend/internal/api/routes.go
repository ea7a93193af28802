// Package api exposes the web backend: book upload, conversion jobs with SSE
// and websocket progress, config management and output serving.
package api

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"audiobook-forge/backend/internal/config"
	"audiobook-forge/backend/internal/jobs"
)

// Server wires the HTTP layer to the job manager and event bus.
type Server struct {
	cfg     *config.Config
	manager *jobs.Manager
	bus     *jobs.EventBus
	hub     *Hub
}

func NewServer(cfg *config.Config) *Server {
	bus := jobs.NewEventBus(500)
	s := &Server{
		cfg:     cfg,
		manager: jobs.NewManager(bus),
		bus:     bus,
		hub:     NewHub(),
	}
	go s.hub.Run()
	go s.relayToHub()
	return s
}

func (s *Server) SetupRoutes(r *gin.Engine, staticFS fs.FS) {
	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api := r.Group("/api")
	{
		api.GET("/config", s.GetConfig)
		api.POST("/config", s.UpdateConfig)

		api.POST("/upload", s.UploadBook)
		api.POST("/convert", s.StartConversion)
		api.GET("/jobs/:jobID", s.GetJob)
		api.GET("/jobs/:jobID/events", s.StreamJobEvents)
		api.POST("/jobs/:jobID/cancel", s.CancelJob)

		api.GET("/voices", s.ListVoices)
		api.GET("/audio-status/:jobID", s.GetAudioStatus)
		api.GET("/ws", s.WsHandler)
	}

	// Serve generated audiobooks
	r.Static("/output", s.cfg.OutputDir)

	// Serve frontend static files (SPA support)
	if staticFS != nil {
		indexData, err := fs.ReadFile(staticFS, "index.html")
		if err != nil {
			indexData = []byte("<h1>Error: index.html not found</h1>")
		}
		serveIndex := func(c *gin.Context) {
			c.Data(200, "text/html; charset=utf-8", indexData)
		}

		r.GET("/", serveIndex)
		r.GET("/index.html", serveIndex)

		r.NoRoute(func(c *gin.Context) {
			path := c.Request.URL.Path
			if strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/output") {
				c.JSON(404, gin.H{"error": "Not Found"})
				return
			}
			// Serve real files where they exist, index.html for SPA routes.
			file, err := staticFS.Open(strings.TrimPrefix(path, "/"))
			if err == nil {
				file.Close()
				c.FileFromFS(path, http.FS(staticFS))
				return
			}
			c.FileFromFS("index.html", http.FS(staticFS))
		})
	}
}

// relayToHub mirrors every bus event onto the websocket hub so both transports
// carry the same progress stream.
func (s *Server) relayToHub() {
	id, wake := s.bus.Subscribe()
	defer s.bus.Unsubscribe(id)

	var last int64
	for range wake {
		for _, ev := range s.bus.Since(last) {
			last = ev.Seq
			s.hub.Broadcast(ev)
		}
	}
}
