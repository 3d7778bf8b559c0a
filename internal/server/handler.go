package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cropdoc/internal/logging"
	"cropdoc/internal/store"
	"cropdoc/internal/types"
)

// Runner is the pipeline as seen by the transport layer.
type Runner interface {
	Run(ctx context.Context, req *types.DiagnosisRequest) *types.DiagnosisResult
}

// ImageSink stores the uploaded photo next to the result and links back to it.
type ImageSink interface {
	PutImage(ctx context.Context, resultID string, image []byte, mimeType string) (string, error)
	ImageURL(ctx context.Context, key string) (string, error)
}

const defaultMaxUpload = 10 << 20

type Handler struct {
	pipeline  Runner
	results   store.ResultStore
	images    ImageSink
	log       *zap.Logger
	maxUpload int64
}

// Options configures a Handler. Images may be nil.
type Options struct {
	Results   store.ResultStore
	Images    ImageSink
	Log       *zap.Logger
	MaxUpload int64
}

func NewHandler(p Runner, opt Options) *Handler {
	if opt.Log == nil {
		opt.Log = zap.NewNop()
	}
	if opt.MaxUpload <= 0 {
		opt.MaxUpload = defaultMaxUpload
	}
	return &Handler{
		pipeline:  p,
		results:   opt.Results,
		images:    opt.Images,
		log:       opt.Log,
		maxUpload: opt.MaxUpload,
	}
}

// Create runs the pipeline on one photo. Provider failures never surface as
// HTTP errors; only unreadable requests do.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r, h.maxUpload)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	res := h.diagnose(r.Context(), req)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) diagnose(ctx context.Context, req *types.DiagnosisRequest) *types.DiagnosisResult {
	res := h.pipeline.Run(ctx, req)
	h.persist(ctx, req, res)
	return res
}

// persist failures are logged; the caller still gets the result.
func (h *Handler) persist(ctx context.Context, req *types.DiagnosisRequest, res *types.DiagnosisResult) {
	log := logging.For(ctx, h.log)
	if h.images != nil && len(req.Image) > 0 {
		key, err := h.images.PutImage(ctx, res.ID, req.Image, req.ImageMIME())
		if err != nil {
			log.Warn("store photo failed", zap.String("result_id", res.ID), zap.Error(err))
		} else {
			res.ImageKey = key
		}
	}
	if h.results != nil {
		if err := h.results.Put(ctx, res); err != nil {
			log.Warn("store result failed", zap.String("result_id", res.ID), zap.Error(err))
		}
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeError(w, http.StatusNotFound, "result storage is disabled")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	res, err := h.results.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "diagnosis not found")
		return
	}
	if err != nil {
		logging.For(r.Context(), h.log).Error("load result failed", zap.String("result_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load diagnosis")
		return
	}
	if h.images != nil && res.ImageKey != "" {
		u, err := h.images.ImageURL(r.Context(), res.ImageKey)
		if err != nil {
			logging.For(r.Context(), h.log).Warn("presign photo failed", zap.String("result_id", id), zap.Error(err))
		} else {
			res.ImageURL = u
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []*types.DiagnosisResult{}})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 100)
	}
	items, err := h.results.List(r.Context(), limit)
	if err != nil {
		logging.For(r.Context(), h.log).Error("list results failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list diagnoses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
