package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clamsproject/spoken-lid/cmd/lid/config"
	"github.com/clamsproject/spoken-lid/cmd/lid/lid"
	"github.com/clamsproject/spoken-lid/cmd/lid/pipeline"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

type ClassifierFactory func(cfg config.LIDConfig) (lid.Classifier, error)

type GateFactory func(cfg config.LIDConfig) (lid.Gate, func(), error)

// modelKey holds the settings a loaded classifier depends on.
type modelKey struct {
	backend   config.Backend
	modelSize config.ModelSize
	device    config.Device
}

func keyFor(cfg config.LIDConfig) modelKey {
	return modelKey{
		backend:   cfg.Backend,
		modelSize: cfg.ModelSize,
		device:    cfg.Device,
	}
}

// Service exposes the pipeline over HTTP. Requests are handled one at a time
// since they share the loaded classifier.
type Service struct {
	cfg           config.LIDConfig
	newClassifier ClassifierFactory
	newGate       GateFactory

	router *gin.Engine
	server *http.Server

	mut         sync.Mutex
	classifier  lid.Classifier
	loadedKey   modelKey
	gate        lid.Gate
	releaseGate func()
}

func NewService(cfg config.LIDConfig, newClassifier ClassifierFactory, newGate GateFactory, production bool) (*Service, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if newClassifier == nil {
		newClassifier = pipeline.NewClassifier
	}
	if newGate == nil {
		newGate = pipeline.NewGate
	}

	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		slog.Error("failed to set trusted proxies", slog.String("err", err.Error()))
	}
	router.Use(gin.Recovery(), requestLogger())

	s := &Service{
		cfg:           cfg,
		newClassifier: newClassifier,
		newGate:       newGate,
		router:        router,
	}
	s.initRouter()

	return s, nil
}

func (s *Service) Handler() http.Handler {
	return s.router
}

func (s *Service) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	slog.Info("starting HTTP server", slog.String("addr", addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

// Stop shuts the server down and releases the loaded models.
func (s *Service) Stop() error {
	var errs []error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown server: %w", err))
		}
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	if s.classifier != nil {
		if err := s.classifier.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy classifier: %w", err))
		}
		s.classifier = nil
	}
	if s.releaseGate != nil {
		s.releaseGate()
		s.gate = nil
		s.releaseGate = nil
	}

	return errors.Join(errs...)
}

// pipelineFor returns a pipeline for cfg, reloading the classifier if the
// request asks for a different model. Must be called with mut held.
func (s *Service) pipelineFor(cfg config.LIDConfig) (*pipeline.Pipeline, error) {
	if s.classifier == nil || s.loadedKey != keyFor(cfg) {
		if s.classifier != nil {
			slog.Info("switching model",
				slog.String("backend", string(cfg.Backend)),
				slog.String("modelSize", string(cfg.ModelSize)))
			if err := s.classifier.Destroy(); err != nil {
				slog.Error("failed to destroy classifier", slog.String("err", err.Error()))
			}
			s.classifier = nil
		}

		classifier, err := s.newClassifier(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create classifier: %w", err)
		}
		s.classifier = classifier
		s.loadedKey = keyFor(cfg)
	}

	var gate lid.Gate
	if cfg.VAD {
		if s.gate == nil {
			g, release, err := s.newGate(cfg)
			if err != nil {
				return nil, err
			}
			s.gate = g
			s.releaseGate = release
		}
		gate = s.gate
	}

	return pipeline.New(cfg, s.classifier, gate)
}
