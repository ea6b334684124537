package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"FinSynth/internal/domain/models"
	"FinSynth/internal/usecase"
	xhttp "FinSynth/pkg/http"
	xlogger "FinSynth/pkg/logger"
)

// WorkerHandler serves the worker API.
type WorkerHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.WorkerService
	started time.Time
}

func NewWorkerHandler(logger *xlogger.Logger, svc *usecase.WorkerService) *WorkerHandler {
	return &WorkerHandler{logger: logger, svc: svc, started: time.Now()}
}

func (h *WorkerHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/simulate", h.Simulate)
	e.GET("/health", h.Health)
}

func (h *WorkerHandler) Simulate(c echo.Context) error {
	req := &models.SimulateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	requester := c.Request().Header.Get(models.RequesterHeader)

	ens, err := h.svc.Simulate(c.Request().Context(), requester, req.ToDomain())
	if err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.NewSimulateResponse(ens))
}

func (h *WorkerHandler) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrNotAccepted):
		return xhttp.AppErrorResponse(c, xhttp.ForbiddenError("requester not accepted").WithError(err))
	case errors.Is(err, usecase.ErrRateLimited):
		c.Response().Header().Set("Retry-After", "1")
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests").WithError(err))
	case errors.Is(err, models.ErrValidation):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err).WithError(err))
	case errors.Is(err, models.ErrDataUnavailable):
		h.logger.Warn("simulation without price data", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("price data unavailable").WithError(err))
	default:
		h.logger.Error("simulate usecase error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
}

func (h *WorkerHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.HealthResponse{
		Status: "ok",
		Role:   "worker",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}
