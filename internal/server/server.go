package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"image_batch/internal/csvio"
	"image_batch/internal/models"
	"image_batch/internal/queue"
	"image_batch/internal/storage"
)

const welcomeMessage = "Welcome to the image processing API!"

type RecordStore interface {
	Create(ctx context.Context, req *models.ProcessingRequest) error
	Get(ctx context.Context, requestID string) (*models.ProcessingRequest, error)
	Finish(ctx context.Context, requestID string, status models.Status, resultLocation, errMsg string) (bool, error)
}

type Server struct {
	cfg        *models.Config
	router     *gin.Engine
	httpServer *http.Server
	store      RecordStore
	dispatcher queue.Dispatcher
	log        *zap.Logger
}

type statusResponse struct {
	RequestID string  `json:"request_id"`
	Status    string  `json:"status"`
	OutputCSV *string `json:"output_csv"`
	Error     *string `json:"error"`
}

func NewServer(cfg *models.Config, store RecordStore, dispatcher queue.Dispatcher, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		cfg:        cfg,
		router:     r,
		store:      store,
		dispatcher: dispatcher,
		log:        log,
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": welcomeMessage})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.POST("/upload", s.handleUpload)
	r.GET("/status/:request_id", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.cfg.ServerAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	mediaType, _, err := mime.ParseMediaType(file.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file format. Please upload a CSV file."})
		return
	}

	webhookURL := c.PostForm("webhook_url")
	if webhookURL != "" && !validWebhookURL(webhookURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook_url must be an absolute http(s) URL"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	defer src.Close()

	rows, err := csvio.ParseProducts(src, s.cfg.Processing.MaxRows)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CSV contains no valid product rows"})
		return
	}

	ctx := c.Request.Context()
	id := uuid.NewString()
	req := models.ProcessingRequest{
		RequestID:  id,
		Status:     models.StatusPending,
		WebhookURL: webhookURL,
	}
	if err := s.store.Create(ctx, &req); err != nil {
		s.log.Error("Failed to create request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	if err := s.dispatcher.Enqueue(ctx, queue.Job{RequestID: id, Rows: rows}); err != nil {
		s.log.Error("Failed to schedule batch", zap.String("request_id", id), zap.Error(err))
		// No run was scheduled, so no processor will ever finalise this request.
		msg := fmt.Sprintf("scheduling error: %v", err)
		if _, ferr := s.store.Finish(context.WithoutCancel(ctx), id, models.StatusFailed, "", msg); ferr != nil {
			s.log.Error("Failed to mark request failed", zap.String("request_id", id), zap.Error(ferr))
		}
		code := http.StatusInternalServerError
		if errors.Is(err, queue.ErrFull) {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	s.log.Info("Batch accepted",
		zap.String("request_id", id),
		zap.Int("rows", len(rows)),
		zap.Bool("webhook", webhookURL != ""))
	c.JSON(http.StatusOK, gin.H{"request_id": id})
}

func (s *Server) handleStatus(c *gin.Context) {
	const op = "server.handleStatus"
	id := c.Param("request_id")

	req, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request ID not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		RequestID: req.RequestID,
		Status:    string(req.Status),
		OutputCSV: optional(req.ResultLocation),
		Error:     optional(req.Error),
	})
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func validWebhookURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
