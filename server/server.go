package server

import (
	"context"
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"

	"github.com/openflock/flockbase/job"
	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/utils/flag"
)

// Server exposes the job machinery over http: submissions land in the
// registry's queue, a single worker drains it, and progress events keep the
// job views current between polls.
type Server struct {
	registry *Registry
	config   job.Config
}

// NewServer builds a server around the shared job config. The config's bus
// must be the one every submitted job publishes on, otherwise progress
// events are lost. A non-positive queueDepth picks the default; metrics may
// be nil.
func NewServer(config job.Config, queueDepth int, metrics *statsd.Client) *Server {
	return &Server{
		registry: NewRegistry(queueDepth, metrics),
		config:   config,
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// Start launches the worker and the progress listener. Both stop when the
// context is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Bus != nil {
		if err := s.registry.ListenProgress(ctx, s.config.Bus); err != nil {
			return err
		}
	}
	go s.registry.RunWorker(ctx)
	return nil
}

// NewRouter assembles the gin engine with every api route attached.
func (s *Server) NewRouter() *gin.Engine {
	// Default with the Logger and Recovery middleware already attached
	router := gin.Default()
	router.Use(cors.Default())
	router.Use(gintrace.Middleware(flag.ServiceName))

	router.GET("/healthcheck", HealthcheckHandler())
	router.GET("/ratelimit", s.RateLimitHandler())
	router.POST("/jobs", s.SubmitJobHandler())
	router.GET("/jobs", s.ListJobsHandler())
	router.GET("/jobs/:id", s.GetJobHandler())

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"message": "flockbase daemon - API not found"})
	})

	return router
}

// buildJob validates a request and constructs the matching job. The shared
// config is copied per job with the request's overrides applied, so one
// submission's flags never leak into the next.
func (s *Server) buildJob(request *JobRequest) (job.Job, error) {
	config := s.config
	if request.BestEffort != nil {
		config.BestEffort = *request.BestEffort
	}
	if request.AllowMissing != nil {
		config.AllowMissing = *request.AllowMissing
	}
	if request.ResolveMode != "" {
		mode := job.ResolveMode(request.ResolveMode)
		if mode != job.ResolveFetch && mode != job.ResolveSkip {
			return nil, &job.ConfigError{Reason: fmt.Sprintf("unknown resolve mode %q", request.ResolveMode)}
		}
		config.ResolveMode = mode
	}
	if request.BatchSize != nil {
		config.BatchSize = *request.BatchSize
	}
	if request.MaxTweets != nil {
		config.MaxTweets = *request.MaxTweets
	}
	if request.OldTweets != nil {
		config.OldTweets = *request.OldTweets
	}

	switch request.Kind {
	case "followers":
		targets, err := job.ParseUserTargets(request.Targets)
		if err != nil {
			return nil, err
		}
		return job.NewFollowJob(config, targets, store.Followers), nil
	case "friends":
		targets, err := job.ParseUserTargets(request.Targets)
		if err != nil {
			return nil, err
		}
		return job.NewFollowJob(config, targets, store.Friends), nil
	case "tweets":
		targets, err := job.ParseUserTargets(request.Targets)
		if err != nil {
			return nil, err
		}
		return job.NewTweetsJob(config, targets), nil
	case "userinfo":
		targets, err := job.ParseUserTargets(request.Targets)
		if err != nil {
			return nil, err
		}
		return job.NewUserInfoJob(config, targets), nil
	case "list-members":
		targets, err := job.ParseListTargets(request.Targets)
		if err != nil {
			return nil, err
		}
		return job.NewListMembersJob(config, targets), nil
	case "tag-create":
		if request.Tag == "" {
			return nil, &job.ConfigError{Reason: "tag jobs need a tag name"}
		}
		return job.NewCreateTagJob(config, request.Tag), nil
	case "tag-delete":
		if request.Tag == "" {
			return nil, &job.ConfigError{Reason: "tag jobs need a tag name"}
		}
		return job.NewDeleteTagJob(config, request.Tag), nil
	case "tag-apply":
		if request.Tag == "" {
			return nil, &job.ConfigError{Reason: "tag jobs need a tag name"}
		}
		targets, err := job.ParseUserTargets(request.Targets)
		if err != nil {
			return nil, err
		}
		return job.NewApplyTagJob(config, request.Tag, targets), nil
	case "ratelimit":
		return job.NewRateLimitStatusJob(config, request.Full), nil
	case "initialize":
		// Wiping the database stays a deliberate, local act.
		return nil, &job.ConfigError{Reason: "the initialize job is cli only"}
	default:
		return nil, &job.ConfigError{Reason: fmt.Sprintf("unknown job kind %q", request.Kind)}
	}
}
