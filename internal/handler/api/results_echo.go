package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"SignalSim/internal/domain/models"
	"SignalSim/internal/service/ratelimit"
	"SignalSim/internal/usecase"
	xhttp "SignalSim/pkg/http"
	xlogger "SignalSim/pkg/logger"
	"SignalSim/pkg/queue"

	"github.com/labstack/echo/v4"
)

// ResultsReader serves persisted run output.
type ResultsReader interface {
	Trades(ctx context.Context, modelID string) (models.TradesReport, error)
	Portfolio(ctx context.Context, modelID string) (models.PortfolioReport, error)
	Runs(ctx context.Context, modelID string, limit int) ([]models.RunSummary, error)
}

// HealthChecks maps a dependency name to its probe.
type HealthChecks map[string]func(context.Context) error

// ResultsEchoHandler exposes simulation results, batch submission and the live run stream.
type ResultsEchoHandler struct {
	logger  *xlogger.Logger
	results ResultsReader
	jobs    queue.Publisher
	runs    []usecase.RunSpec
	limiter *ratelimit.Limiter
	stream  http.Handler
	health  HealthChecks
}

func NewResultsEchoHandler(
	logger *xlogger.Logger,
	results ResultsReader,
	jobs queue.Publisher,
	runs []usecase.RunSpec,
	limiter *ratelimit.Limiter,
	stream http.Handler,
	health HealthChecks,
) *ResultsEchoHandler {
	return &ResultsEchoHandler{
		logger:  logger,
		results: results,
		jobs:    jobs,
		runs:    runs,
		limiter: limiter,
		stream:  stream,
		health:  health,
	}
}

func (h *ResultsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/trades", h.Trades)
	g.GET("/portfolios", h.Portfolios)
	g.GET("/runs", h.Runs)
	g.POST("/simulations", h.Simulate)
	g.GET("/health", h.Health)
	if h.stream != nil {
		e.GET("/ws/runs", echo.WrapHandler(h.stream))
	}
}

func (h *ResultsEchoHandler) Trades(c echo.Context) error {
	req := &models.ModelQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.results.Trades(c.Request().Context(), req.ModelType)
	if err != nil {
		return h.fail(c, "trades", err, "No trade data found for this model")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ResultsEchoHandler) Portfolios(c echo.Context) error {
	req := &models.ModelQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.results.Portfolio(c.Request().Context(), req.ModelType)
	if err != nil {
		return h.fail(c, "portfolio", err, "No portfolio data found for this model")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ResultsEchoHandler) Runs(c echo.Context) error {
	req := &models.RunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := h.results.Runs(c.Request().Context(), req.ModelType, req.Limit)
	if err != nil {
		return h.fail(c, "runs", err, "")
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

// Simulate queues a batch and answers 202 with the job id. Limited per client IP.
func (h *ResultsEchoHandler) Simulate(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("Too many simulation requests, retry later"))
	}
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("Simulation queue is disabled"))
	}
	req := &models.SimulationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := usecase.PlanRuns(h.runs, *req)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	id, err := h.jobs.Enqueue(c.Request().Context(), usecase.SimulationJobType, usecase.NewBatchParams(runs, *req))
	if err != nil {
		h.logger.Error("enqueue simulation error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("Could not queue the simulation").WithError(err))
	}
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ModelID())
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{"job_id": id, "runs": ids})
}

// Health probes every dependency; any failure answers 503 with the per-dependency status.
func (h *ResultsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.health))
	for name := range h.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	code := http.StatusOK
	for _, name := range names {
		if err := h.health[name](ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	return xhttp.DataResponse(c, code, status)
}

func (h *ResultsEchoHandler) fail(c echo.Context, op string, err error, notFound string) error {
	if notFound != "" && errors.Is(err, usecase.ErrNoResults) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(notFound))
	}
	h.logger.Error(op+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
