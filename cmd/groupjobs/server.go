package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"groupjobs/internal/constants"
	"groupjobs/internal/corruption"
	"groupjobs/internal/database"
	apperrors "groupjobs/internal/errors"
	"groupjobs/internal/jobstore"
	"groupjobs/internal/middleware"
	"groupjobs/internal/models"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	cfg      *models.Config
	db       *database.Database
	store    *jobstore.Store
	detector *corruption.Detector
	server   *http.Server
}

func NewServer(cfg *models.Config, db *database.Database, store *jobstore.Store, detector *corruption.Detector, logger *logrus.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		cfg:      cfg,
		db:       db,
		store:    store,
		detector: detector,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, nil))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/queue", s.handleQueue()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting diagnostics server on port %d", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status            string `json:"status"`
	CorruptionFlagged bool   `json:"corruption_flagged"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:            "ok",
			CorruptionFlagged: s.detector.IsFlagged(),
		}
		status := http.StatusOK

		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Warn("Database ping failed")
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}

		s.writeJSON(w, status, resp)
	}
}

type queueGroup struct {
	GroupID string `json:"group_id"`
	Count   uint   `json:"count"`
}

type queueResponse struct {
	Total  uint         `json:"total"`
	Groups []queueGroup `json:"groups"`
}

// handleQueue reports the queue depth overall and per group from a single
// read transaction so the numbers agree with each other.
func (s *Server) handleQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := queueResponse{Groups: []queueGroup{}}

		err := s.db.Read(ctx, func(tx *database.ReadTx) error {
			total, err := s.store.JobCount(ctx, tx)
			if err != nil {
				return err
			}
			resp.Total = total

			for _, groupID := range s.store.AllEnqueuedGroupIDs(ctx, tx) {
				resp.Groups = append(resp.Groups, queueGroup{
					GroupID: hex.EncodeToString(groupID),
					Count:   s.store.JobCountForGroup(ctx, tx, groupID),
				})
			}
			return nil
		})
		if err != nil {
			apperrors.WrapLogger(s.logger).LogRetryableError(err, "Failed to read queue state", logrus.Fields{
				constants.LogFieldOperation: "queue_state",
			})
			s.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": "queue state unavailable"})
			return
		}

		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
