package api

import (
	"context"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/scheduler"
	xhttp "CoinFlow/pkg/http"
	xlogger "CoinFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

type JobControl interface {
	Jobs() []scheduler.JobInfo
	RunNow(ctx context.Context, name string) error
}

type JobsHandler struct {
	logger *xlogger.Logger
	jobs   JobControl
}

func NewJobsHandler(logger *xlogger.Logger, jobs JobControl) *JobsHandler {
	return &JobsHandler{logger: logger, jobs: jobs}
}

func (h *JobsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/jobs")
	g.GET("", h.List)
	g.POST("/:name/run", h.Run)
}

func (h *JobsHandler) List(c echo.Context) error {
	jobs := h.jobs.Jobs()
	return xhttp.ListResponse(c, jobs, int64(len(jobs)))
}

type jobRunResponse struct {
	Name      string  `json:"name"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// Run executes a job synchronously and reports how long it took.
func (h *JobsHandler) Run(c echo.Context) error {
	req := &models.RunJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	start := time.Now()
	if err := h.jobs.RunNow(c.Request().Context(), req.Name); err != nil {
		if !isClientError(err) {
			h.logger.Error("run job", xlogger.String("job", req.Name), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, jobRunResponse{
		Name:      req.Name,
		ElapsedMS: float64(time.Since(start).Microseconds()) / 1000,
	})
}
