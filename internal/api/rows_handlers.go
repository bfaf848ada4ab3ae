package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/metrics"
	"github.com/JakeFAU/weblog-normalizer/internal/query"
	"github.com/JakeFAU/weblog-normalizer/internal/storage/sqlite"
)

const (
	defaultRowLimit = 100
	maxRowLimit     = 10_000
	readTimeout     = 30 * time.Second
)

// RowsHandler serves projection reads and grouped counts.
type RowsHandler struct {
	reader  RowReader
	opts    query.Options
	timeout time.Duration
	logger  *zap.Logger
}

// NewRowsHandler wires the reader and logger.
func NewRowsHandler(reader RowReader, opts query.Options, logger *zap.Logger) *RowsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RowsHandler{reader: reader, opts: opts, timeout: readTimeout, logger: logger}
}

// Rows handles GET /v1/rows?columns=a,b&where=col:op:value&offset=&limit=.
// It returns {"columns": [...], "rows": [[...]], "total": n}, 400 for unknown
// columns or malformed predicates, and 503 without a reader.
func (h *RowsHandler) Rows(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "output store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRowLimit, maxRowLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	where, err := query.ParsePredicates(r.URL.Query()["where"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	projection := parseColumns(r.URL.Query().Get("columns"))
	if len(projection) == 0 {
		for _, c := range h.reader.Columns() {
			projection = append(projection, c.Name)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	total, err := h.reader.Count(ctx, where)
	if err != nil {
		h.fail(w, "count rows", err)
		return
	}
	rows, err := h.reader.ReadChunk(ctx, projection, where, int64(offset), int64(limit))
	if err != nil {
		h.fail(w, "read rows", err)
		return
	}
	for _, row := range rows {
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
	}
	metrics.ObserveRowsServed("rows", len(rows))
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": projection,
		"rows":    rows,
		"offset":  offset,
		"limit":   limit,
		"total":   total,
	})
}

// Counts handles GET /v1/counts?by=col&where=col:op:value. Country counts
// carry resolved country names.
func (h *RowsHandler) Counts(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "output store unavailable")
		return
	}
	by := strings.TrimSpace(r.URL.Query().Get("by"))
	if by == "" {
		writeError(w, http.StatusBadRequest, "by is required")
		return
	}
	if !h.hasColumn(by) {
		writeError(w, http.StatusBadRequest, "unknown column "+strconv.Quote(by))
		return
	}
	where, err := query.ParsePredicates(r.URL.Query()["where"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	metrics.ObserveGroupRequest(by)
	counts, err := query.GroupCount(ctx, h.reader, by, where, h.opts)
	if err != nil {
		h.fail(w, "group count", err)
		return
	}
	metrics.ObserveRowsServed("counts", len(counts.Buckets))
	writeJSON(w, http.StatusOK, counts)
}

func (h *RowsHandler) hasColumn(name string) bool {
	for _, c := range h.reader.Columns() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (h *RowsHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, sqlite.ErrUnknownColumn), errors.Is(err, query.ErrInvalidPredicate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, op+" timed out")
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

func parseColumns(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
