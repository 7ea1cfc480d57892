package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/services"
	"accession/internal/workflow"
)

const requestIDHeader = "X-Request-ID"

// Scheduler starts batches and reports workflow state.
type Scheduler interface {
	StartBatch(batch string) error
	Wake()
	Status(ctx context.Context) workflow.StatusSummary
}

// QueueNotifier is told about newly enqueued batches.
type QueueNotifier interface {
	BatchQueued(ctx context.Context, batch string, packages int)
}

// Deps are the collaborators behind the routes. Scheduler, Notifier, Status
// and Metrics are optional.
type Deps struct {
	Queue     *QueueService
	Scheduler Scheduler
	Notifier  QueueNotifier
	Status    func(ctx context.Context) DaemonStatus
	Metrics   http.Handler
	Logger    *slog.Logger
}

type handlers struct {
	Deps
	logger *slog.Logger
}

// NewRouter builds the gin engine serving the daemon API.
func NewRouter(deps Deps) *gin.Engine {
	h := &handlers{Deps: deps, logger: logging.NewComponentLogger(deps.Logger, "api")}

	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	group := router.Group("/api")
	group.POST("/batches", h.enqueue)
	group.GET("/batches", h.listBatches)
	group.GET("/batches/:batch", h.describeBatch)
	group.POST("/batches/:batch/start", h.startBatch)
	group.DELETE("/queue", h.clearQueue)
	group.GET("/status", h.status)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	return router
}

func (h *handlers) requestLogger(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	ctx := services.WithRequestID(c.Request.Context(), id)
	c.Request = c.Request.WithContext(ctx)

	started := time.Now()
	c.Next()

	level := slog.LevelDebug
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	logging.WithContext(ctx, h.logger).Log(ctx, level, "api request",
		logging.String("method", c.Request.Method),
		logging.String("path", c.FullPath()),
		logging.Int("status", c.Writer.Status()),
		logging.Duration("elapsed", time.Since(started)),
	)
}

func (h *handlers) enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	resp, err := h.Queue.Enqueue(c.Request.Context(), req.Batch, req.Packages)
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	if h.Notifier != nil {
		h.Notifier.BatchQueued(c.Request.Context(), resp.Batch, len(resp.Records))
	}
	if h.Scheduler != nil {
		h.Scheduler.Wake()
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *handlers) listBatches(c *gin.Context) {
	batches, err := h.Queue.Batches(c.Request.Context())
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, BatchListResponse{Batches: batches})
}

func (h *handlers) describeBatch(c *gin.Context) {
	detail, err := h.Queue.Describe(c.Request.Context(), c.Param("batch"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "batch not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *handlers) startBatch(c *gin.Context) {
	batch := c.Param("batch")
	if h.Scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: workflow.ErrNotRunning.Error()})
		return
	}
	detail, err := h.Queue.Describe(c.Request.Context(), batch)
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "batch not found"})
		return
	}
	if err := h.Scheduler.StartBatch(batch); err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, StartResponse{Batch: batch, Started: true})
}

func (h *handlers) clearQueue(c *gin.Context) {
	resp, err := h.Queue.Clear(c.Request.Context(), c.Query("batch"))
	if err != nil {
		h.fail(c, statusFor(err), err)
		return
	}
	logging.WithContext(c.Request.Context(), h.logger).Info("queue cleared",
		logging.Event("queue_cleared"),
		logging.Batch(resp.Batch),
		logging.Int64("removed", resp.Removed),
	)
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) status(c *gin.Context) {
	ctx := c.Request.Context()
	var status DaemonStatus
	if h.Status != nil {
		status = h.Status(ctx)
	} else if h.Scheduler != nil {
		status = DaemonStatus{Running: true, Workflow: FromStatusSummary(h.Scheduler.Status(ctx))}
	}
	c.JSON(http.StatusOK, status)
}

func (h *handlers) fail(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(c.Request.Context(), h.logger), "api request failed", "api_error",
			logging.String("path", c.FullPath()),
			logging.ErrorKind(err),
			logging.Error(err),
		)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued), errors.Is(err, ErrBatchBusy), errors.Is(err, workflow.ErrBatchActive):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrAtCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, workflow.ErrNotRunning):
		return http.StatusServiceUnavailable
	}
	switch services.Classify(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindRemoteCall, services.KindTimeout:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
