package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"

	"github.com/Brownie44l1/crop-disease-api/internal/model"
	"github.com/Brownie44l1/crop-disease-api/internal/pipeline"
)

const (
	maxUploadBytes = 10 << 20
	maxJSONBytes   = 32 << 20
	defaultTopK    = 5
)

type Handler struct {
	pipeline *pipeline.Pipeline
	log      logs.Log
}

func NewHandler(p *pipeline.Pipeline, log logs.Log) *Handler {
	return &Handler{
		pipeline: p,
		log:      log,
	}
}

// Routes builds the HTTP API. requestsPerMinute limits the prediction routes per client IP;
// zero disables the limit.
func (h *Handler) Routes(requestsPerMinute int) http.Handler {
	router := httprouter.New()

	limited := func(method, path string, handle httprouter.Handle) {
		if requestsPerMinute <= 0 {
			router.Handle(method, path, handle)
			return
		}
		limiter := httprate.Limit(requestsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	router.GET("/health", h.Health)
	router.GET("/labels", h.Labels)
	limited("POST", "/predict", h.Predict)
	limited("POST", "/predict/image", h.PredictFromImage)

	router.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return enableCORS(router)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !h.pipeline.Ready() {
		sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "model not loaded"})
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Labels(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sendJSON(w, http.StatusOK, map[string][]string{"classes": h.pipeline.Labels()})
}

// Predict classifies a raw, row-major R,G,B pixel array.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	outcome, err := h.pipeline.RunRGB(req.Width, req.Height, req.Pixels)
	h.send(w, r, outcome, err)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	h.log.Debugf("Received file: %s, size: %d bytes", header.Filename, header.Size)

	outcome, err := h.pipeline.RunReader(file)
	h.send(w, r, outcome, err)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, outcome *pipeline.Outcome, err error) {
	if err != nil {
		http.Error(w, model.FailureText, h.statusFor(err))
		return
	}
	sendJSON(w, http.StatusOK, outcome.Response(topK(r)))
}

func (h *Handler) statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidImage):
		return http.StatusBadRequest
	case !h.pipeline.Ready():
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func topK(r *http.Request) int {
	k, err := strconv.Atoi(r.URL.Query().Get("top"))
	if err != nil || k < 0 {
		return defaultTopK
	}
	return k
}

func sendJSON(w http.ResponseWriter, status int, obj any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(obj)
}
