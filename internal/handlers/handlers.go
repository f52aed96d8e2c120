package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Brownie44l1/flower-cnn/internal/dataset"
	"github.com/Brownie44l1/flower-cnn/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxUploadBytes = 10 << 20

type Handler struct {
	classifier *model.Classifier
}

func NewHandler(classifier *model.Classifier) *Handler {
	return &Handler{
		classifier: classifier,
	}
}

func (h *Handler) AddRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/predict", h.Predict)
	r.Post("/predict/image", h.PredictFromImage)
}

// NewRouter returns the prediction API with CORS and request logging.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	h.AddRoutes(r)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	expectedSize := h.classifier.Metadata.InputSize()
	if len(req.Image) != expectedSize {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)),
			http.StatusBadRequest)
		return
	}

	result, err := h.classifier.Predict(req.Image)
	if err != nil {
		slog.Error("prediction error", "error", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
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

	slog.Info("received image", "filename", header.Filename, "bytes", header.Size)

	image, err := dataset.DecodeImage(file, h.classifier.Metadata.ImageSize)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG, GIF, BMP, TIFF, PPM", http.StatusBadRequest)
		return
	}
	dataset.ScalePixels(image)

	result, err := h.classifier.PredictTensor(image)
	if err != nil {
		slog.Error("prediction error", "error", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}
