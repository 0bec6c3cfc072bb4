// internal/api/handler/plc.go
//
// Package handler implements the REST surface (spec §6): health check,
// single-shot tag read/write, and a mixed read+write batch endpoint. Batch
// size is checked against MaxBatchSize and tag paths are resolved against
// the registry before any PLC I/O is attempted, per spec §6's "unknown tag
// paths are rejected before any I/O".
package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"s7gateway/internal/batch"
	"s7gateway/internal/registry"
	"s7gateway/internal/tag"
	"s7gateway/pkg/resilience"
)

// defaultWriteRateLimit caps writes per tag path, guarding against a
// misbehaving client hammering the same bit over and over.
const (
	defaultWriteRateLimit  = 20
	defaultWriteRateWindow = time.Second
)

const serviceVersion = "1.0.0"

// PLCHandler serves the tag read/write/batch endpoints against reg. Each
// declared PLC has its own sync-lane Engine (its own Session, its own TCP
// connection); tags are split by Decl.PLC before dispatch and the
// per-engine results are merged back into one response.
type PLCHandler struct {
	reg          *registry.Registry
	engines      map[string]*batch.Engine
	maxBatchSize int
	writeLimiter *resilience.RateLimiter
}

// NewPLCHandler wires reg and the per-PLC sync engines; maxBatchSize
// defaults to 100 (spec §6) when zero. Writes are additionally throttled
// per tag path via a sliding-window rate limiter.
func NewPLCHandler(reg *registry.Registry, engines map[string]*batch.Engine, maxBatchSize int) *PLCHandler {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	return &PLCHandler{
		reg:          reg,
		engines:      engines,
		maxBatchSize: maxBatchSize,
		writeLimiter: resilience.NewRateLimiter(defaultWriteRateLimit, defaultWriteRateWindow),
	}
}

// filterRateLimited splits tags into those still allowed to write this
// window and the paths that were throttled.
func (h *PLCHandler) filterRateLimited(tags []*tag.Tag) (allowed []*tag.Tag, throttled []string) {
	for _, t := range tags {
		if h.writeLimiter.AllowOperation(t.Decl.TagPath) {
			allowed = append(allowed, t)
		} else {
			throttled = append(throttled, t.Decl.TagPath)
		}
	}
	return allowed, throttled
}

// groupByPLC splits tags by their declared PLC.
func groupByPLC(tags []*tag.Tag) map[string][]*tag.Tag {
	out := make(map[string][]*tag.Tag)
	for _, t := range tags {
		out[t.Decl.PLC] = append(out[t.Decl.PLC], t)
	}
	return out
}

// readAcrossPLCs dispatches tags to each one's engine and merges results.
// A tag whose PLC has no registered engine gets a synthetic error, rather
// than panicking on a nil map lookup.
func (h *PLCHandler) readAcrossPLCs(tags []*tag.Tag) map[string]batch.ReadResult {
	results := make(map[string]batch.ReadResult, len(tags))
	for plcName, group := range groupByPLC(tags) {
		engine, ok := h.engines[plcName]
		if !ok {
			for _, t := range group {
				results[t.Decl.TagPath] = batch.ReadResult{Err: fmt.Errorf("plc %q sem engine registrada", plcName)}
			}
			continue
		}
		for path, r := range engine.ReadAll(group) {
			results[path] = r
		}
	}
	return results
}

// flushAcrossPLCs is the write-side equivalent of readAcrossPLCs.
func (h *PLCHandler) flushAcrossPLCs(tags []*tag.Tag) map[string]error {
	results := make(map[string]error, len(tags))
	for plcName, group := range groupByPLC(tags) {
		engine, ok := h.engines[plcName]
		if !ok {
			for _, t := range group {
				results[t.Decl.TagPath] = fmt.Errorf("plc %q sem engine registrada", plcName)
			}
			continue
		}
		for path, err := range engine.FlushPending(group) {
			results[path] = err
		}
	}
	return results
}

func successResponse(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "data": data})
}

func errorResponse(c *gin.Context, code int, message string, errs interface{}) {
	c.JSON(code, gin.H{"success": false, "message": message, "errors": errs})
}

// Health reports liveness (spec §6's GET /health).
func (h *PLCHandler) Health(c *gin.Context) {
	successResponse(c, gin.H{
		"status":  "ok",
		"service": "s7gateway",
		"version": serviceVersion,
	}, "serviço operacional")
}

// resolveTags resolves paths against the registry, returning the found
// tags and the subset of paths that don't exist. Callers must reject the
// request with 404 if missing is non-empty, before issuing any PLC I/O.
func (h *PLCHandler) resolveTags(paths []string) (tags []*tag.Tag, missing []string) {
	for _, p := range paths {
		t, ok := h.reg.Get(p)
		if !ok {
			missing = append(missing, p)
			continue
		}
		tags = append(tags, t)
	}
	return tags, missing
}

// Read serves GET /api/plc/read?tags=a,b,c.
func (h *PLCHandler) Read(c *gin.Context) {
	tagsParam := c.Query("tags")
	if strings.TrimSpace(tagsParam) == "" {
		errorResponse(c, http.StatusBadRequest, "parâmetro tags é obrigatório", nil)
		return
	}

	paths := splitAndTrim(tagsParam)
	if len(paths) == 0 {
		errorResponse(c, http.StatusBadRequest, "lista de tags vazia", nil)
		return
	}
	if len(paths) > h.maxBatchSize {
		errorResponse(c, http.StatusRequestEntityTooLarge,
			"quantidade de tags excede o limite de lote", nil)
		return
	}

	tags, missing := h.resolveTags(paths)
	if len(missing) > 0 {
		errorResponse(c, http.StatusNotFound, "tags desconhecidas", missing)
		return
	}

	results := h.readAcrossPLCs(tags)
	data := make(map[string]interface{}, len(tags))
	var readErrs map[string]string
	for path, r := range results {
		if r.Err != nil {
			if readErrs == nil {
				readErrs = make(map[string]string)
			}
			readErrs[path] = r.Err.Error()
			continue
		}
		data[path] = r.Value
	}

	if len(readErrs) > 0 {
		errorResponse(c, http.StatusInternalServerError, "falha parcial na leitura de tags", readErrs)
		return
	}
	successResponse(c, data, "leitura realizada com sucesso")
}

// Write serves POST /api/plc/write with body {"<tag>": value, ...}.
func (h *PLCHandler) Write(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil || len(body) == 0 {
		errorResponse(c, http.StatusBadRequest, "corpo da requisição deve ser um JSON de tag:valor", nil)
		return
	}
	if len(body) > h.maxBatchSize {
		errorResponse(c, http.StatusRequestEntityTooLarge,
			"quantidade de tags excede o limite de lote", nil)
		return
	}

	paths := make([]string, 0, len(body))
	for p := range body {
		paths = append(paths, p)
	}
	tags, missing := h.resolveTags(paths)
	if len(missing) > 0 {
		errorResponse(c, http.StatusNotFound, "tags desconhecidas", missing)
		return
	}

	allowed, throttled := h.filterRateLimited(tags)

	for _, t := range allowed {
		t.StagePendingWrite(body[t.Decl.TagPath])
	}

	writeErrs := h.flushAcrossPLCs(allowed)
	data := make(map[string]bool, len(tags))
	var failed map[string]string
	for path, err := range writeErrs {
		data[path] = err == nil
		if err != nil {
			if failed == nil {
				failed = make(map[string]string)
			}
			failed[path] = err.Error()
		}
	}
	for _, path := range throttled {
		data[path] = false
		if failed == nil {
			failed = make(map[string]string)
		}
		failed[path] = "limite de escritas por segundo excedido para esta tag"
	}

	if len(failed) > 0 {
		errorResponse(c, http.StatusInternalServerError, "falha parcial na escrita de tags", failed)
		return
	}
	successResponse(c, data, "escrita realizada com sucesso")
}

type batchRequest struct {
	Read  []string               `json:"read"`
	Write map[string]interface{} `json:"write"`
}

// Batch serves POST /api/plc/batch with body {read: [...], write: {...}}.
func (h *PLCHandler) Batch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "corpo da requisição inválido", nil)
		return
	}

	total := len(req.Read) + len(req.Write)
	if total > h.maxBatchSize {
		errorResponse(c, http.StatusRequestEntityTooLarge,
			"quantidade total de operações excede o limite de lote", nil)
		return
	}

	writePaths := make([]string, 0, len(req.Write))
	for p := range req.Write {
		writePaths = append(writePaths, p)
	}

	readTags, missingRead := h.resolveTags(req.Read)
	writeTags, missingWrite := h.resolveTags(writePaths)
	if len(missingRead) > 0 || len(missingWrite) > 0 {
		errorResponse(c, http.StatusNotFound, "tags desconhecidas",
			gin.H{"read": missingRead, "write": missingWrite})
		return
	}

	readData := make(map[string]interface{})
	if len(readTags) > 0 {
		for path, r := range h.readAcrossPLCs(readTags) {
			if r.Err == nil {
				readData[path] = r.Value
			} else {
				readData[path] = nil
			}
		}
	}

	writeData := make(map[string]bool)
	if len(writeTags) > 0 {
		allowed, throttled := h.filterRateLimited(writeTags)
		for _, t := range allowed {
			t.StagePendingWrite(req.Write[t.Decl.TagPath])
		}
		for path, err := range h.flushAcrossPLCs(allowed) {
			writeData[path] = err == nil
		}
		for _, path := range throttled {
			writeData[path] = false
		}
	}

	successResponse(c, gin.H{"read": readData, "write": writeData}, "operação em lote concluída")
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
