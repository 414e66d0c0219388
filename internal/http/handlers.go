package http

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/charts"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/report"
	"fintrack/internal/source"
)

const readinessTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports ready once totals can be served, from the source or
// from the offline fallbacks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if _, err := s.session.Totals(ctx); err != nil {
		checks["totals"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["totals"] = "ok"
	}
	checks["offline"] = s.session.Offline()
	checks["transactions"] = len(s.session.Transactions())
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"owner":     s.session.Owner(),
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.trace.GetMetrics()
	offline := 0
	if s.session.Offline() {
		offline = 1
	}

	var b bytes.Buffer
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_response_time_average_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("transactions_loaded", "gauge", "Transactions in the working set", len(s.session.Transactions()))
	metric("session_offline", "gauge", "1 when serving a restored snapshot", offline)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(s.now().Sub(s.started).Seconds()))

	NewResponse().Body("text/plain; version=0.0.4; charset=utf-8", b.Bytes()).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.session.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err, log.OpLoad)
		return
	}
	NewResponse().JSON(dash).Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	params := ParseReportParams(r.URL.Query())
	NewResponse().JSON(s.session.Report(params.Period, params.Kind)).Write(w)
}

type searchResponse struct {
	Query        string             `json:"query"`
	Count        int                `json:"count"`
	Transactions []core.Transaction `json:"transactions"`
}

// handleSearch lists the working set, or the source's filtered listing
// when any filter is given, narrowed by the free-text ?q=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters, err := ParseFilters(query)
	if err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}
	q := stripControl(query.Get("q"))

	var found []core.Transaction
	if filters.IsZero() {
		found = s.session.Search(q)
	} else {
		listed, err := s.session.List(r.Context(), filters)
		if err != nil {
			s.writeError(w, r, err, log.OpList)
			return
		}
		found = report.SearchTransactions(listed, q)
	}
	NewResponse().JSON(searchResponse{Query: q, Count: len(found), Transactions: found}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	kind := ParseReportParams(r.URL.Query()).Kind
	NewResponse().JSON(map[string]any{
		"type":       kind,
		"categories": s.session.Categories(kind),
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := ParseTransaction(NewRequestBodyParser(r), s.now())
	if err != nil {
		s.writeError(w, r, err, log.OpCreate)
		return
	}

	created, err := s.session.AddTransaction(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err, log.OpCreate)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+created.ID).
		JSON(created).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	if err := s.session.RemoveTransaction(r.Context(), id); err != nil {
		s.writeError(w, r, err, log.OpDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := source.ParseExportFormat(r.PathValue("format"))
	if err != nil {
		ErrorResponse(http.StatusBadRequest, err.Error(), trace.GetRequestID(r.Context())).Write(w)
		return
	}

	// Buffered so that a failing source still gets a clean error response.
	var buf bytes.Buffer
	contentType, err := s.session.Export(r.Context(), format, &buf)
	if err != nil {
		s.writeError(w, r, err, log.OpExport)
		return
	}
	filename := fmt.Sprintf("transactions-%s.%s", s.now().Format(core.DateLayout), format)
	NewResponse().
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename)).
		Body(contentType, buf.Bytes()).
		Write(w)
}

func (s *Server) handleTrendChart(w http.ResponseWriter, r *http.Request) {
	params := ParseReportParams(r.URL.Query())
	png, err := charts.RenderTrend(s.session.Report(params.Period, params.Kind).Trend)
	if err != nil {
		s.writeError(w, r, err, log.OpRender)
		return
	}
	NewResponse().Body("image/png", png).Write(w)
}

func (s *Server) handleBreakdownChart(w http.ResponseWriter, r *http.Request) {
	params := ParseReportParams(r.URL.Query())
	png, err := charts.RenderBreakdown(s.session.Report(params.Period, params.Kind).Breakdown, params.Kind)
	if err != nil {
		s.writeError(w, r, err, log.OpRender)
		return
	}
	NewResponse().Body("image/png", png).Write(w)
}

// writeError logs err at a level matching its status and answers with the
// JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	ctx := r.Context()
	status := StatusForError(err)
	logger := log.FromContext(ctx)

	fields := log.NewFields().WithErrorType(errorType(status))
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, operation, fields)
	} else {
		logger.LogFields(ctx, slog.LevelWarn, "Request rejected",
			fields.WithOperation(operation).WithError(err))
	}

	ErrorResponse(status, publicMessage(status, err), trace.GetRequestID(ctx)).Write(w)
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return log.ErrorTypeValidation
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusConflict, http.StatusNotImplemented:
		return log.ErrorTypeConfiguration
	case http.StatusBadGateway:
		return log.ErrorTypeAuth
	case http.StatusGatewayTimeout:
		return log.ErrorTypeNetwork
	default:
		return log.ErrorTypeInternal
	}
}
