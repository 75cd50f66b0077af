package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/deepdive/internal/agent/core"
	"github.com/mohammad-safakhou/deepdive/internal/runtime"
	"github.com/mohammad-safakhou/deepdive/internal/store"
)

var analysesTracer trace.Tracer = otel.Tracer("deepdive/internal/server/analyses")

// Analyzer is the slice of the pipeline the API layer needs.
type Analyzer interface {
	RunAnalysisWithID(ctx context.Context, runID, query string, reporter core.ProgressReporter) (core.ReflectionOutput, error)
	GetStatus(runID string) (core.RunStatus, error)
}

// AnalysesHandler exposes analysis runs over HTTP. Runs execute asynchronously;
// clients poll the archive or follow the SSE event stream.
type AnalysesHandler struct {
	Store    *store.Store
	Pipeline Analyzer
	Broker   ProgressStream
	Logger   *log.Logger

	// RunTimeout bounds a detached run's lifetime; zero means no bound.
	RunTimeout time.Duration
}

func (h *AnalysesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/events", h.events)
}

func (h *AnalysesHandler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

func (h *AnalysesHandler) create(c echo.Context) error {
	var req CreateAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	ctx := c.Request().Context()
	userID, _ := runtime.SubjectFromContext(ctx)

	runID := uuid.NewString()
	ctx, span := analysesTracer.Start(ctx, "AnalysesHandler.create",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	if err := h.Store.CreateAnalysisRun(ctx, runID, userID, req.Query); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	go h.runDetached(runID, userID, req.Query)

	return c.JSON(http.StatusAccepted, CreateAnalysisResponse{ID: runID, Status: store.RunStatusRunning})
}

// runDetached executes the pipeline outside the request lifecycle and archives
// the outcome. Progress goes through the broker so /events subscribers see it.
func (h *AnalysesHandler) runDetached(runID, userID, query string) {
	ctx := context.Background()
	cancel := func() {}
	if h.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.RunTimeout)
	}
	defer cancel()

	var reporter core.ProgressReporter
	if h.Broker != nil {
		reporter = h.Broker.Reporter(runID)
	}

	result, err := h.Pipeline.RunAnalysisWithID(ctx, runID, query, reporter)
	if err != nil {
		h.logger().Printf("run %s failed: %v", runID, err)
		if dbErr := h.Store.FailAnalysisRun(ctx, runID, userID, err.Error()); dbErr != nil {
			h.logger().Printf("run %s: archive failure state: %v", runID, dbErr)
		}
		return
	}
	if dbErr := h.Store.FinishAnalysisRun(ctx, userID, result); dbErr != nil {
		h.logger().Printf("run %s: archive result: %v", runID, dbErr)
	}
}

func (h *AnalysesHandler) get(c echo.Context) error {
	userID, _ := runtime.SubjectFromContext(c.Request().Context())
	id := c.Param("id")
	run, ok, err := h.Store.GetAnalysisRun(c.Request().Context(), id, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	resp := toRunResponse(run)
	if run.Status == store.RunStatusRunning {
		if st, err := h.Pipeline.GetStatus(id); err == nil {
			resp.Stage = st.Stage
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AnalysesHandler) list(c echo.Context) error {
	userID, _ := runtime.SubjectFromContext(c.Request().Context())
	limit := 0
	if val := strings.TrimSpace(c.QueryParam("limit")); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.Store.ListAnalysisRuns(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := AnalysisListResponse{Runs: make([]AnalysisRunResponse, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRunResponse(run))
	}
	return c.JSON(http.StatusOK, resp)
}

// events streams a run's progress via Server-Sent Events until the run emits
// its terminal event or the client disconnects.
func (h *AnalysesHandler) events(c echo.Context) error {
	if h.Broker == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream unavailable")
	}
	userID, _ := runtime.SubjectFromContext(c.Request().Context())
	id := c.Param("id")
	ctx := c.Request().Context()

	run, ok, err := h.Store.GetAnalysisRun(ctx, id, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}

	// Subscribe before checking for a finished run: a run that finishes
	// between the check and the subscription would otherwise leave the
	// client waiting on a channel that will never carry the terminal event.
	events, cancel := h.Broker.Subscribe(ctx, id)
	defer cancel()

	run, ok, err = h.Store.GetAnalysisRun(ctx, id, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, canFlush := resp.Writer.(http.Flusher)
	if !canFlush {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	if run.Status != store.RunStatusRunning {
		// Already archived; emit the outcome as the terminal event.
		writeSSE(resp, flusher, core.EventComplete, toRunResponse(run))
		return nil
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if _, err := resp.Write([]byte(": keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := resp.Write([]byte("event: " + evt.Type + "\n")); err != nil {
				return nil
			}
			data := evt.Payload
			if len(data) == 0 {
				data = []byte("{}")
			}
			if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
			if evt.Type == core.EventComplete {
				return nil
			}
		}
	}
}

func writeSSE(resp *echo.Response, flusher http.Flusher, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	if _, err := resp.Write([]byte("event: " + eventType + "\n")); err != nil {
		return
	}
	if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return
	}
	flusher.Flush()
}

func toRunResponse(run store.AnalysisRun) AnalysisRunResponse {
	return AnalysisRunResponse{
		ID:                    run.ID,
		Query:                 run.Query,
		Status:                run.Status,
		Error:                 run.Error,
		ComprehensiveAnalysis: run.ComprehensiveAnalysis,
		KeyInsights:           run.KeyInsights,
		ConfidenceScore:       run.ConfidenceScore,
		Sources:               run.Sources,
		CostEstimate:          run.CostEstimate,
		TokensUsed:            run.TokensUsed,
		ModelsUsed:            run.ModelsUsed,
		ProcessingTimeMS:      run.ProcessingTime.Milliseconds(),
		CreatedAt:             run.CreatedAt,
		FinishedAt:            run.FinishedAt,
	}
}
