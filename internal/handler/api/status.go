package api

import (
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"FinSynth/internal/domain/models"
	"FinSynth/internal/repository"
	xhttp "FinSynth/pkg/http"
	xlogger "FinSynth/pkg/logger"
)

// StatusHandler exposes read-only snapshots of the coordinator state.
type StatusHandler struct {
	logger  *xlogger.Logger
	book    *repository.ScoreBook
	ledger  *repository.RequestLedger
	started time.Time
}

func NewStatusHandler(logger *xlogger.Logger, book *repository.ScoreBook, ledger *repository.RequestLedger) *StatusHandler {
	return &StatusHandler{logger: logger, book: book, ledger: ledger, started: time.Now()}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/weights", h.Weights)
	g.GET("/scores", h.Scores)
	g.GET("/workers/:id/samples", h.Samples)
}

func (h *StatusHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.HealthResponse{
		Status:          "ok",
		Role:            "coordinator",
		Uptime:          time.Since(h.started).Round(time.Second).String(),
		PendingRequests: h.ledger.Len(),
		KnownWorkers:    len(h.book.Known()),
	})
}

func (h *StatusHandler) Weights(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.SuccessResponse(c, models.NewWeightsResponse(h.book.Weights()))
}

// Scores lists aggregated scores, best first.
func (h *StatusHandler) Scores(c echo.Context) error {
	aggs := h.book.Aggregates()
	out := make([]models.AggregatedScoreDTO, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, models.NewAggregatedScoreDTO(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return xhttp.SuccessResponse(c, out)
}

// Samples returns the most recent retained samples of one worker, newest first.
func (h *StatusHandler) Samples(c echo.Context) error {
	req := &models.SamplesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	hist := h.book.Samples(req.ID)
	if len(hist) == 0 && !h.known(req.ID) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("worker %q not found", req.ID))
	}

	sort.SliceStable(hist, func(i, j int) bool { return hist[i].Timestamp.After(hist[j].Timestamp) })
	if len(hist) > req.Limit {
		hist = hist[:req.Limit]
	}
	out := make([]models.ScoreSampleDTO, len(hist))
	for i, s := range hist {
		out[i] = models.NewScoreSampleDTO(s)
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *StatusHandler) known(id string) bool {
	for _, k := range h.book.Known() {
		if k == id {
			return true
		}
	}
	return false
}
