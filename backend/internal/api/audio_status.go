package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// GetAudioStatus checks whether a finished job's audiobook file exists and
// returns the URL it is served at.
func (s *Server) GetAudioStatus(c *gin.Context) {
	jobID := c.Param("jobID")

	job, ok := s.manager.Get(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job"})
		return
	}

	if job.OutputPath == "" {
		c.JSON(http.StatusOK, gin.H{"exists": false, "jobId": jobID})
		return
	}

	if _, err := os.Stat(job.OutputPath); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"exists": false, "jobId": jobID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to check audio status: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"exists": true,
		"jobId":  jobID,
		"title":  job.BookTitle,
		"url":    fmt.Sprintf("/output/%s", filepath.Base(job.OutputPath)),
	})
}
