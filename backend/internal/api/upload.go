package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"audiobook-forge/backend/internal/document"
)

// sectionSummary is a chapter listing without content, to keep upload
// responses small.
type sectionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	WordCount int    `json:"wordCount"`
	CharCount int    `json:"charCount"`
}

// UploadBook saves the uploaded file and returns its parsed chapter listing
// so the client can pick chapters before converting.
func (s *Server) UploadBook(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload directory"})
		return
	}

	dst := filepath.Join(s.cfg.UploadDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	// Parse without OCR here: upload should stay fast, the conversion pass
	// does the expensive work.
	doc, err := document.Parse(c.Request.Context(), dst, document.ParseOptions{})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to parse book: %v", err)})
		return
	}

	sections := make([]sectionSummary, 0, len(doc.Sections))
	for _, sec := range doc.Sections {
		sections = append(sections, sectionSummary{
			ID:        sec.ID,
			Title:     sec.Title,
			WordCount: sec.WordCount,
			CharCount: sec.CharCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Upload successful",
		"bookPath":   dst,
		"title":      doc.Title,
		"author":     doc.Author,
		"chapters":   sections,
		"totalWords": doc.TotalWords(),
		"totalChars": doc.TotalChars(),
	})
}
