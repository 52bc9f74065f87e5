package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JobRequest is the POST /jobs payload. The option fields are pointers so an
// omitted field falls back to the daemon's defaults instead of the zero
// value.
type JobRequest struct {
	Kind    string   `json:"kind" binding:"required"`
	Targets []string `json:"targets"`
	Tag     string   `json:"tag"`
	Full    bool     `json:"full"`

	BestEffort   *bool  `json:"best_effort"`
	AllowMissing *bool  `json:"allow_missing"`
	ResolveMode  string `json:"resolve_mode"`
	BatchSize    *int   `json:"batch_size"`
	MaxTweets    *int   `json:"max_tweets"`
	OldTweets    *bool  `json:"old_tweets"`
}

// SubmitJobHandler accepts a job request, queues the job and answers 202
// with the job's view. The caller polls GET /jobs/:id for the outcome.
func (s *Server) SubmitJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		request := &JobRequest{}
		if err := c.ShouldBindJSON(request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		j, err := s.buildJob(request)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		view, err := s.registry.Submit(j)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, view)
	}
}

// GetJobHandler reports one job's current view.
func (s *Server) GetJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		view := s.registry.Snapshot(c.Param("id"))
		if view == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// ListJobsHandler reports every tracked job, most recent first.
func (s *Server) ListJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"jobs": s.registry.List()})
	}
}

// RateLimitHandler reports the pool's locally observed rate limit windows.
// It never calls the api; submit a ratelimit job for the authoritative
// numbers.
func (s *Server) RateLimitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"credentials": s.config.Client.Pool().Snapshot()})
	}
}

// HealthcheckHandler answers the liveness probe.
func HealthcheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	}
}
