package ml

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"housing-forest/internal/common"
)

const (
	// RequestIDHeader carries the request correlation id.
	RequestIDHeader = "X-Request-ID"
	maxBodyBytes    = 8 << 20
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDFromContext returns the id assigned by the request-id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ServerOptions configures the HTTP server around the prediction service.
type ServerOptions struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// ModelServer provides HTTP API for model predictions
type ModelServer struct {
	service  *Service
	metadata *ModelMetadata
	metrics  MetricsInterface
	router   *mux.Router
	upgrader websocket.Upgrader
	server   *http.Server
}

// errorResponse is the body of every 4xx/5xx answer.
type errorResponse struct {
	Error string `json:"error"`
}

// NewModelServer creates a new HTTP server for model serving
func NewModelServer(service *Service, metadata *ModelMetadata, metrics MetricsInterface, opts ServerOptions) *ModelServer {
	if metadata == nil {
		metadata = &ModelMetadata{Version: "unknown", Kind: ModelKind, NumTrees: service.Trees()}
	}
	ms := &ModelServer{
		service:  service,
		metadata: metadata,
		metrics:  metrics,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)
	r.HandleFunc("/", ms.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", ms.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/predict", ms.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/model/info", ms.handleModelInfo).Methods(http.MethodGet)
	r.HandleFunc("/ws/predict", ms.handlePredictStream).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	ms.router = r

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	ms.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return ms
}

// Handler exposes the router, mainly for tests.
func (ms *ModelServer) Handler() http.Handler {
	return ms.router
}

// Start begins serving HTTP requests. It blocks until the server stops and
// returns nil after a graceful Shutdown.
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Msg("starting model server")
	if err := ms.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("model server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, common.LivenessMessage)
}

// handleHealth never touches the model.
func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ms.metadata)
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: common.ErrMsgInvalidJSON})
		return
	}

	status, payload := ms.predict(r.Context(), body)
	writeJSON(w, status, payload)
}

// handlePredictStream answers every text frame with what POST /predict would
// have returned for the same body.
func (ms *ModelServer) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ms.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	for {
		msgType, body, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		_, payload := ms.predict(r.Context(), body)
		if err := conn.WriteJSON(payload); err != nil {
			log.Warn().Err(err).Msg("websocket write failed")
			return
		}
	}
}

// predict validates body and runs the service. It returns the status code
// and the JSON payload to send back.
func (ms *ModelServer) predict(ctx context.Context, body []byte) (int, interface{}) {
	if ms.metrics != nil {
		ms.metrics.MLRequestsInc()
	}

	rows, err := DecodeFeatures(body, ms.service.Width())
	if err != nil {
		if !IsValidationError(err) {
			log.Error().Err(err).Str("request_id", RequestIDFromContext(ctx)).Msg("decode failed")
			return http.StatusInternalServerError, errorResponse{Error: common.ErrMsgPredictionFailed}
		}
		if ms.metrics != nil {
			ms.metrics.MLValidationErrorsInc(validationReason(err))
		}
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	}

	results, err := ms.service.Predict(ctx, rows)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", RequestIDFromContext(ctx)).
			Int("rows", len(rows)).
			Msg("prediction failed")
		return http.StatusInternalServerError, errorResponse{Error: common.ErrMsgPredictionFailed}
	}
	return http.StatusOK, results
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Debug().
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	})
}

// statusRecorder captures the response status. It keeps hijacking available
// so websocket upgrades pass through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
