// Package handlers exposes the digit recognizer over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/pipeline"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/Brownie44l1/digit-api/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultMaxUploadBytes = 10 << 20
	codeNotFound          = "not_found"
)

// Predictor is the recognition pipeline as seen by the HTTP layer.
type Predictor interface {
	Predict(ctx context.Context, img image.Image, opts ...pipeline.RequestOption) (*pipeline.Result, error)
	Preprocess(ctx context.Context, img image.Image) (preprocess.Tensor, error)
}

// Readiness reports whether the classifier has finished loading.
type Readiness interface {
	Ready() bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMetrics sets the metrics manager used by the request middleware.
func WithMetrics(m *metrics.Manager) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

// WithMaxUploadBytes bounds request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithMaxCanvasPixels bounds the decoded drawing area. Oversized canvases are
// rejected before their pixels are allocated.
func WithMaxCanvasPixels(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxCanvasPixels = n
		}
	}
}

// Handler serves predictions and keeps the last displayed result.
type Handler struct {
	predictor       Predictor
	readiness       Readiness
	last            *state.Holder[*pipeline.Result]
	log             logger.Logger
	metrics         *metrics.Manager
	gatherer        prometheus.Gatherer
	maxUploadBytes  int64
	maxCanvasPixels int
}

// NewHandler builds a Handler.
func NewHandler(predictor Predictor, readiness Readiness, opts ...Option) *Handler {
	h := &Handler{
		predictor:       predictor,
		readiness:       readiness,
		last:            &state.Holder[*pipeline.Result]{},
		log:             logger.Nop(),
		metrics:         metrics.Global(),
		gatherer:        metrics.GetRegistry(),
		maxUploadBytes:  defaultMaxUploadBytes,
		maxCanvasPixels: preprocess.DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register attaches all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", enableCORS(h.instrument("health", h.Health)))
	mux.HandleFunc("/predict", enableCORS(h.instrument("predict", h.Predict)))
	mux.HandleFunc("/predict/image", enableCORS(h.instrument("predict_image", h.PredictFromImage)))
	mux.HandleFunc("/preprocess", enableCORS(h.instrument("preprocess", h.Preprocess)))
	mux.HandleFunc("/prediction", enableCORS(h.instrument("prediction", h.Prediction)))
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

type healthResponse struct {
	Status     string `json:"status"`
	ModelReady bool   `json:"model_ready"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ready := h.readiness != nil && h.readiness.Ready()
	respondJSON(w, http.StatusOK, healthResponse{Status: "healthy", ModelReady: ready})
}

// canvasRequest carries a drawing either as raw canvas pixels or as a data URL.
type canvasRequest struct {
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	Pixels      []byte   `json:"pixels"`
	Image       string   `json:"image"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func (c canvasRequest) decode(maxPixels int) (image.Image, error) {
	if strings.TrimSpace(c.Image) != "" {
		return preprocess.DecodeDataURL(c.Image, maxPixels)
	}
	return preprocess.FromPixels(c.Width, c.Height, c.Pixels, maxPixels)
}

// Predict handles POST /predict with a JSON canvas body.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	req, img, ok := h.readCanvas(w, r)
	if !ok {
		return
	}

	var opts []pipeline.RequestOption
	if req.Temperature != nil {
		opts = append(opts, pipeline.Temperature(*req.Temperature))
	}
	h.predict(w, r, img, opts)
}

// PredictFromImage handles POST /predict/image with a multipart "image" file.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.respondBadBody(w, r, err, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, string(pipeline.KindInvalidInput),
			"No image file provided. Use 'image' as the form field name")
		return
	}
	defer file.Close()

	h.log.Debug(r.Context(), "received upload", logger.String("filename", header.Filename), logger.Int("bytes", int(header.Size)))

	img, err := preprocess.Decode(file, h.maxCanvasPixels)
	if err != nil {
		h.respondPipelineError(w, r, err)
		return
	}

	var opts []pipeline.RequestOption
	if raw := r.FormValue("temperature"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, string(pipeline.KindInvalidInput), "temperature must be a number")
			return
		}
		opts = append(opts, pipeline.Temperature(t))
	}
	h.predict(w, r, img, opts)
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request, img image.Image, opts []pipeline.RequestOption) {
	res, err := h.predictor.Predict(r.Context(), img, opts...)
	if err != nil {
		h.respondPipelineError(w, r, err)
		return
	}
	h.last.Set(res)
	respondJSON(w, http.StatusOK, res)
}

// Preprocess handles POST /preprocess and returns the binarized 28x28 grid as PNG.
func (h *Handler) Preprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	_, img, ok := h.readCanvas(w, r)
	if !ok {
		return
	}

	tensor, err := h.predictor.Preprocess(r.Context(), img)
	if err != nil {
		h.respondPipelineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Foreground-Pixels", strconv.Itoa(tensor.Foreground()))
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, tensor.Image()); err != nil {
		h.log.Error(r.Context(), "failed to encode preview", logger.Error(err))
	}
}

// Prediction handles GET and DELETE /prediction: read or clear the last result.
func (h *Handler) Prediction(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		res, ok := h.last.Get()
		if !ok {
			respondError(w, http.StatusNotFound, codeNotFound, "No prediction to show.")
			return
		}
		respondJSON(w, http.StatusOK, res)
	case http.MethodDelete:
		h.last.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		respondMethodNotAllowed(w)
	}
}

func (h *Handler) readCanvas(w http.ResponseWriter, r *http.Request) (canvasRequest, image.Image, bool) {
	var req canvasRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondBadBody(w, r, err, "Invalid JSON")
		return req, nil, false
	}

	img, err := req.decode(h.maxCanvasPixels)
	if err != nil {
		h.respondPipelineError(w, r, err)
		return req, nil, false
	}
	return req, img, true
}

func (h *Handler) respondBadBody(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, string(pipeline.KindInvalidInput), "The drawing is too large.")
		return
	}
	h.log.Debug(r.Context(), "bad request body", logger.Error(err))
	respondError(w, http.StatusBadRequest, string(pipeline.KindInvalidInput), msg)
}

func (h *Handler) respondPipelineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := pipeline.Classify(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.log.Warn(r.Context(), "prediction failed", logger.String("kind", string(kind)), logger.Error(err))
	}
	respondError(w, status, string(kind), pipeline.UserMessage(kind))
}

func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindEmptyCanvas, pipeline.KindNoVisibleContent:
		return http.StatusUnprocessableEntity
	case pipeline.KindModelNotReady:
		return http.StatusServiceUnavailable
	case pipeline.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Code: code, Message: message})
}

func respondMethodNotAllowed(w http.ResponseWriter) {
	respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
