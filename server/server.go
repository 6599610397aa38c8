// Package server exposes a loaded model over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"

	"github.com/YuminosukeSato/gbforecast/artifact"
	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/pipeline"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
)

// Server serves predictions from the artifact of the configured pipeline
// version and swaps in a newer artifact when one is saved.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	logger log.Logger

	mu        sync.RWMutex
	predictor *pipeline.Predictor
	modTime   time.Time
}

// New loads the current artifact and builds the router.
func New(cfg *config.Config) (*Server, error) {
	p, err := pipeline.LoadPredictor(cfg)
	if err != nil {
		return nil, err
	}
	mt, err := artifact.ModTime(cfg.Paths.Models, cfg.Metadata.PipelineVersion)
	if err != nil {
		return nil, err
	}
	return NewWithPredictor(cfg, p, mt), nil
}

// NewWithPredictor builds a server around an already loaded predictor.
func NewWithPredictor(cfg *config.Config, p *pipeline.Predictor, modTime time.Time) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    log.GetLoggerWithName("server"),
		predictor: p,
		modTime:   modTime,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	origins := s.cfg.Serving.AllowedOrigins
	cc := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	r.Use(cors.New(cc))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Inference API is running"})
	})
	r.GET("/health", s.health)
	r.GET("/model", s.model)
	r.GET("/predict", s.predictFile)
	r.POST("/predict", s.predictRecords)
	r.POST("/forecast", s.forecast)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Handled request",
			log.HTTPMethodKey, c.Request.Method,
			log.HTTPPathKey, c.FullPath(),
			log.HTTPStatusKey, c.Writer.Status(),
			log.DurationMsKey, time.Since(start).Milliseconds())
	}
}

func (s *Server) current() *pipeline.Predictor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predictor
}

// Reload loads the artifact again if it changed on disk since the last load.
// It reports whether the model was swapped.
func (s *Server) Reload() (bool, error) {
	mt, err := artifact.ModTime(s.cfg.Paths.Models, s.cfg.Metadata.PipelineVersion)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	unchanged := !mt.After(s.modTime)
	s.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	p, err := pipeline.LoadPredictor(s.cfg)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.predictor, s.modTime = p, mt
	s.mu.Unlock()
	s.logger.Info("Reloaded model artifact",
		log.ModelVersionKey, s.cfg.Metadata.PipelineVersion,
		"run_id", p.Bundle().Metadata.RunID)
	return true, nil
}

// Run serves on serving.addr until ctx is cancelled, then shuts down within
// serving.shutdown_grace.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Serving.ReloadInterval > 0 {
		sched := gocron.NewScheduler(time.UTC)
		_, err := sched.Every(s.cfg.Serving.ReloadInterval).Do(func() {
			err := errors.SafeExecute("model reload", func() error {
				_, err := s.Reload()
				return err
			})
			if err != nil {
				s.logger.Warn("Model reload failed", err)
			}
		})
		if err != nil {
			return errors.Wrap(err, "schedule model reload")
		}
		sched.StartAsync()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              s.cfg.Serving.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	grace := s.cfg.Serving.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	s.logger.Info("Shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
