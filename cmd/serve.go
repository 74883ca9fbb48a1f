package cmd

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/bootstrap/logging"
	"foodtrace/internal/domain/trace"
	"foodtrace/internal/errs"
	"foodtrace/internal/ports"
	"foodtrace/internal/usecase/traceability"
)

const signatureHeader = "X-Signature-256"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the traceability API over HTTP",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *traceability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.Server.Addr
		}

		server := &http.Server{
			Addr:              addr,
			Handler:           newTraceHTTPHandler(ctx, svc, app.Config.Server.GatewaySecret),
			ReadHeaderTimeout: 10 * time.Second,
		}

		logging.Info(ctx, "traceability api started", slog.String("addr", addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "traceability api failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve traceability api")
		}
		return nil
	}),
}

type traceAPI interface {
	CreateChain(context.Context, traceability.CreateChainInput) (traceability.CreateChainResult, error)
	AppendEvent(context.Context, traceability.AppendEventInput) (traceability.AppendEventResult, error)
	ListChains(context.Context, ports.ChainFilter) ([]trace.Chain, error)
	GetSummary(context.Context, uint64) (traceability.Summary, error)
	Verify(context.Context, uint64) (traceability.VerifyResult, error)
	LastVerification(context.Context, uint64) (traceability.VerifyResult, bool)
	IngestRecentTelemetry(context.Context, uint64) (traceability.IngestResult, error)
	MonitorTemperatureViolations(context.Context, traceability.MonitorInput) (traceability.MonitorResult, error)
	ComputeSensorDerivedQuality(context.Context, uint64) (traceability.SensorQualityResult, error)
	DetectAnomalies(context.Context, uint64) (trace.AnomalyReport, error)
}

type traceHTTPHandler struct {
	baseCtx       context.Context
	svc           traceAPI
	gatewaySecret string
}

type createChainRequest struct {
	ProductID  uint64 `json:"product_id"`
	ProducerID uint64 `json:"producer_id"`
}

type appendEventRequest struct {
	EventType      string          `json:"event_type"`
	Actor          *trace.Actor    `json:"actor"`
	Location       *trace.Location `json:"location"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      string          `json:"timestamp"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type monitorRequest struct {
	Policy string   `json:"policy"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

type httpErrorResponse struct {
	Error string `json:"error"`
}

func newTraceHTTPHandler(ctx context.Context, svc traceAPI, gatewaySecret string) http.Handler {
	h := &traceHTTPHandler{baseCtx: ctx, svc: svc, gatewaySecret: gatewaySecret}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/chains", func(r chi.Router) {
		r.Post("/", h.handleCreateChain)
		r.Get("/", h.handleListChains)
		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", h.handleSummary)
			r.Post("/events", h.handleAppendEvent)
			r.Post("/verify", h.handleVerify)
			r.Get("/verification", h.handleLastVerification)
			r.Post("/telemetry/ingest", h.handleIngest)
			r.Post("/temperature-monitor", h.handleMonitor)
			r.Post("/sensor-quality", h.handleSensorQuality)
			r.Get("/anomalies", h.handleAnomalies)
		})
	})
	return r
}

func (h *traceHTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		logging.Info(h.baseCtx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
}

// requestContext carries the command logger into the request.
func (h *traceHTTPHandler) requestContext(r *http.Request) context.Context {
	ctx := logging.WithLogger(r.Context(), logging.Logger(h.baseCtx))
	return logging.WithAttrs(ctx, logging.Attrs(h.baseCtx)...)
}

func (h *traceHTTPHandler) handleCreateChain(w http.ResponseWriter, r *http.Request) {
	var req createChainRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.svc.CreateChain(h.requestContext(r), traceability.CreateChainInput{
		ProductID:  req.ProductID,
		ProducerID: req.ProducerID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newChainView(result.Chain))
}

func (h *traceHTTPHandler) handleListChains(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ports.ChainFilter{
		OnlyComplete: query.Get("complete") == "true",
		OnlyVerified: query.Get("verified") == "true",
	}
	if raw := query.Get("producer"); raw != "" {
		producerID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid producer")
			return
		}
		filter.ProducerID = producerID
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	chains, err := h.svc.ListChains(h.requestContext(r), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newChainViews(chains))
}

func (h *traceHTTPHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.GetSummary(h.requestContext(r), productID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryView(summary))
}

func (h *traceHTTPHandler) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req appendEventRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	eventType, err := trace.ParseEventType(req.EventType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	input := traceability.AppendEventInput{
		ProductID:      productID,
		Type:           eventType,
		Actor:          req.Actor,
		Location:       req.Location,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		payload, err := trace.DecodePayload(req.Payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		input.Payload = payload
	}
	if raw := strings.TrimSpace(req.Timestamp); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		input.Timestamp = ts
	}

	result, err := h.svc.AppendEvent(h.requestContext(r), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, newAppendView(result))
}

func (h *traceHTTPHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Verify(h.requestContext(r), productID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *traceHTTPHandler) handleLastVerification(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	result, found := h.svc.LastVerification(h.requestContext(r), productID)
	if !found {
		writeError(w, http.StatusNotFound, "no cached verification")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *traceHTTPHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read payload")
		return
	}
	if err := validateGatewaySignature(h.gatewaySecret, r.Header.Get(signatureHeader), payload); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	result, err := h.svc.IngestRecentTelemetry(h.requestContext(r), productID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *traceHTTPHandler) handleMonitor(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req monitorRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input := traceability.MonitorInput{ProductID: productID, Policy: req.Policy}
	if req.Min != nil || req.Max != nil {
		band := trace.DefaultTemperatureBand
		if req.Min != nil {
			band.Min = *req.Min
		}
		if req.Max != nil {
			band.Max = *req.Max
		}
		input.Band = &band
	}

	result, err := h.svc.MonitorTemperatureViolations(h.requestContext(r), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *traceHTTPHandler) handleSensorQuality(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ComputeSensorDerivedQuality(h.requestContext(r), productID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *traceHTTPHandler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	report, err := h.svc.DetectAnomalies(h.requestContext(r), productID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	productID, err := strconv.ParseUint(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID == 0 {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return productID, true
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// validateGatewaySignature checks an X-Signature-256 "sha256=<hex>" HMAC of
// the body. An empty secret disables the check.
func validateGatewaySignature(secret string, header string, payload []byte) error {
	normalizedSecret := strings.TrimSpace(secret)
	if normalizedSecret == "" {
		return nil
	}

	signature := strings.TrimSpace(header)
	if signature == "" {
		return errors.New("missing " + signatureHeader)
	}

	const prefix = "sha256="
	if len(signature) <= len(prefix) || !strings.EqualFold(signature[:len(prefix)], prefix) {
		return errors.New("invalid " + signatureHeader + " format")
	}

	decoded, err := hex.DecodeString(strings.TrimSpace(signature[len(prefix):]))
	if err != nil {
		return errors.New("invalid " + signatureHeader + " digest")
	}

	mac := hmac.New(sha256.New, []byte(normalizedSecret))
	if _, err := mac.Write(payload); err != nil {
		return errs.Wrap(err, "compute gateway signature")
	}
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return errors.New("invalid " + signatureHeader)
	}
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, trace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trace.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, trace.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, httpErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr)")
}
