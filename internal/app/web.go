// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/calibration"
	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/store"
)

// Server exposes calibration and session analysis over HTTP.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	router *gin.Engine
}

func NewServer(cfg *config.Config, st *store.Store) *Server {
	s := &Server{cfg: cfg, store: st, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	api := s.router.Group("/api")
	api.GET("/health", s.health)
	api.POST("/devices/:device_id/calibrate", s.calibrate)
	api.GET("/devices/:device_id/calibrations", s.listCalibrations)
	api.GET("/calibrations/:id", s.getCalibration)
	api.POST("/sessions/analyze", s.analyze)

	s.router.GET("/ws/calibration", func(c *gin.Context) {
		s.HandleCalibrationWS(c.Writer, c.Request)
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("web: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// calibrationConfig applies the per-request window overrides.
func (s *Server) calibrationConfig(c *gin.Context) (calibration.Config, error) {
	cc := s.cfg.Calibration()
	var err error
	if cc.StaticWindowSize, err = queryInt(c, "static_window", cc.StaticWindowSize); err != nil {
		return cc, err
	}
	if cc.RotationWindowSize, err = queryInt(c, "rotation_window", cc.RotationWindowSize); err != nil {
		return cc, err
	}
	if raw := c.Query("purity_threshold"); raw != "" {
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return cc, fmt.Errorf("invalid purity_threshold %q: %w", raw, perr)
		}
		cc.RotationPurityThreshold = v
	}
	return cc, nil
}

func (s *Server) calibrate(c *gin.Context) {
	deviceID := c.Param("device_id")
	step, err := queryInt(c, "step", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cc, err := s.calibrationConfig(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := imu.DecodeBatch(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if batch.Meta.DeviceID == "" {
		batch.Meta.DeviceID = deviceID
	}

	rec, err := calibrateAndStore(s.store, deviceID, step, batch, cc)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// calibrateAndStore records one calibration attempt. Data-quality
// failures are stored as failed records, not returned as errors.
func calibrateAndStore(st *store.Store, deviceID string, step int, batch imu.Batch, cc calibration.Config) (store.Record, error) {
	if batch.Meta.SampleRate > 0 {
		cc.SampleRate = 0
	}
	rec, err := st.Create(deviceID, step)
	if err != nil {
		return store.Record{}, err
	}
	res, err := calibration.CalibrateBatch(batch, cc)
	if err != nil {
		res = calibration.Result{Success: false, Message: err.Error()}
		if _, cerr := st.Complete(rec.ID, res); cerr != nil {
			log.Warnf("calibration: closing record %s: %v", rec.ID, cerr)
		}
		return store.Record{}, err
	}
	log.Infof("calibration: device %s step %d -> %s %s", deviceID, step, res.Status(), res.FailureReason)
	return st.Complete(rec.ID, res)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrCompleted):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) listCalibrations(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	size, err := queryInt(c, "page_size", 20)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.store.List(c.Param("device_id"), page, size))
}

func (s *Server) getCalibration(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid calibration id %q", c.Param("id"))})
		return
	}
	rec, err := s.store.Get(id)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) analyze(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := Analyze(req, s.cfg.Analysis(), s.store)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// RunWeb serves the API until ctx is cancelled.
func RunWeb(ctx context.Context, cfg *config.Config, st *store.Store) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewServer(cfg, st).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("web server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infof("web server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
