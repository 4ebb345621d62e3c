package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"match-service/internal/fileio"
	"match-service/internal/matching/itemsheet"
	"match-service/internal/matching/model"
	"match-service/internal/matching/service"
)

// Defaults are used for any option a request leaves out.
type Defaults struct {
	Rank               model.RankOptions
	PairWeights        model.FieldWeights
	DuplicateThreshold float64
	PairsThreshold     float64
}

// Handler exposes the ranker over HTTP. The pool in a request plays the
// persistence layer: the handler applies the category and disposition filter.
type Handler struct {
	ranker    *service.Ranker
	defaults  Defaults
	maxUpload int64
	validate  *validator.Validate
	logger    zerolog.Logger
}

func New(ranker *service.Ranker, defaults Defaults, maxUploadBytes int64, logger zerolog.Logger) *Handler {
	return &Handler{
		ranker:    ranker,
		defaults:  defaults,
		maxUpload: maxUploadBytes,
		validate:  validator.New(),
		logger:    logger.With().Str("component", "handler").Logger(),
	}
}

// Rank: POST /match/rank
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if !h.decode(w, r, &req) {
		return
	}
	query, err := req.Query.toRecord()
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	pool, err := toRecords(req.Pool)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	opts, err := req.Options.apply(h.defaults.Rank)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	out, more, err := h.ranker.Rank(r.Context(), query, eligible(query, pool), opts)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{Suggestions: out, HasMore: more})
}

// Similar: POST /match/similar
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if !h.decode(w, r, &req) {
		return
	}
	pool, err := toRecords(req.Pool)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	threshold := h.defaults.DuplicateThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	out, err := h.ranker.FindSimilar(r.Context(), req.Title, req.CategoryID, pool, threshold)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, similarResponse{Similars: out})
}

// Explain: POST /match/explain
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := req.Item.toRecord()
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	cand, err := req.Candidate.toRecord()
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	opts, err := req.Options.apply(h.defaults.Rank)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	rep, err := h.ranker.Explain(r.Context(), item, cand, opts)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Pairs: POST /match/pairs, JSON pool or a multipart registry export in "items".
func (h *Handler) Pairs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var (
		pool      []model.Candidate
		weights   = h.defaults.PairWeights
		threshold = h.defaults.PairsThreshold
		skipped   int
	)

	if isMultipart(r) {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			h.fail(w, r, bodyStatus(err), fmt.Errorf("bad multipart form: %w", err))
			return
		}
		f, hdr, err := r.FormFile("items")
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, fmt.Errorf("missing items file: %w", err))
			return
		}
		defer f.Close()

		sheet, err := fileio.ReadSheet(f, hdr.Filename, atoi(r.FormValue("header_row"), 1))
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, err)
			return
		}
		res := itemsheet.ToCandidates(sheet, itemsheet.DefaultMapping())
		pool, skipped = res.Candidates, res.Skipped
		if v := r.FormValue("threshold"); v != "" {
			t, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
			if err != nil {
				h.fail(w, r, http.StatusBadRequest, fmt.Errorf("bad threshold %q", v))
				return
			}
			threshold = t
		}
		h.reqLogger(r).Debug().
			Str("file", hdr.Filename).
			Int("rows", len(sheet.Rows)).
			Int("imported", len(pool)).
			Int("skipped", skipped).
			Interface("columns", res.Columns).
			Msg("items imported")
	} else {
		var req pairsRequest
		if !h.decode(w, r, &req) {
			return
		}
		var err error
		if pool, err = toRecords(req.Pool); err != nil {
			h.fail(w, r, http.StatusBadRequest, err)
			return
		}
		if req.Weights != nil {
			if weights, err = model.ParseFieldWeights(req.Weights); err != nil {
				h.fail(w, r, http.StatusBadRequest, err)
				return
			}
		}
		if req.Threshold != nil {
			threshold = *req.Threshold
		}
	}

	pairs, err := h.ranker.Pairs(r.Context(), pool, weights, threshold)
	if err != nil {
		h.fail(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pairsResponse{Pairs: pairs, Threshold: threshold, Imported: len(pool), Skipped: skipped})
	h.reqLogger(r).Info().
		Int("pool", len(pool)).
		Int("pairs", len(pairs)).
		Dur("elapsed", time.Since(start)).
		Msg("pairs done")
}

// eligible keeps same-category records of the opposite disposition, in pool order.
func eligible(q model.Record, pool []model.Candidate) []model.Candidate {
	want := q.Disposition.Opposite()
	out := make([]model.Candidate, 0, len(pool))
	for _, c := range pool {
		if c.Disposition == want && c.CategoryID == q.CategoryID {
			out = append(out, c)
		}
	}
	return out
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, bodyStatus(err), fmt.Errorf("read body: %w", err))
		return false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		h.fail(w, r, http.StatusBadRequest, errors.New("empty body"))
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		h.fail(w, r, http.StatusBadRequest, fmt.Errorf("bad json: %w", err))
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	ev := h.reqLogger(r).Warn()
	if status >= 500 {
		ev = h.reqLogger(r).Error()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) reqLogger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.logger
}

func statusFor(err error) int {
	if errors.Is(err, model.ErrInvalidConfiguration) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return i
}
