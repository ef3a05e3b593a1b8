package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/slimlo/internal/audit"
	"github.com/ocx/slimlo/internal/cache"
	"github.com/ocx/slimlo/internal/events"
	"github.com/ocx/slimlo/internal/webhooks"
	"github.com/ocx/slimlo/pkg/slimlo"
)

type convertRequest struct {
	Format  string          `json:"format"`
	Options *slimlo.Options `json:"options,omitempty"`
}

type convertResponse struct {
	RequestID    string              `json:"request_id"`
	Success      bool                `json:"success"`
	ErrorCode    slimlo.ErrorCode    `json:"error_code,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Diagnostics  []slimlo.Diagnostic `json:"diagnostics,omitempty"`
	Cached       bool                `json:"cached"`
}

// handleConvert accepts a multipart upload under field "document" plus a
// JSON "request" field describing the target format, converts it through
// the pool (consulting the cache first), and streams the PDF bytes back.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "request too large or malformed: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("document")
	if err != nil {
		http.Error(w, "missing \"document\" file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	docBytes, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	var req convertRequest
	if raw := r.FormValue("request"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			http.Error(w, "invalid \"request\" field: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	format := slimlo.FormatDOCX
	if req.Format != "" {
		if parsed := slimlo.ParseFormat(req.Format); parsed != slimlo.FormatUnknown {
			format = parsed
		}
	}

	requestID := uuid.NewString()
	start := time.Now()
	ctx := r.Context()

	formatSpec := format.String()
	if req.Options != nil {
		if optsJSON, err := json.Marshal(req.Options); err == nil {
			formatSpec += ":" + string(optsJSON)
		}
	}
	cacheKey := cache.HashInput(docBytes, formatSpec)
	if pdf, hit, err := s.cache.Get(ctx, cacheKey); err == nil && hit {
		s.metrics.CacheHits.Inc()
		s.writePDF(w, pdf, convertResponse{RequestID: requestID, Success: true, Cached: true})
		return
	}
	s.metrics.CacheMisses.Inc()

	result, err := s.pool.ExecuteBuffer(ctx, docBytes, format, req.Options)
	duration := time.Since(start)

	if err != nil {
		http.Error(w, "conversion cancelled: "+err.Error(), http.StatusRequestTimeout)
		return
	}

	s.metrics.RecordConversion(format.String(), result.Success, duration)
	s.recordAudit(requestID, format.String(), result, duration)

	if !result.Success {
		s.publish(events.TypeConversionFailed, requestID, map[string]interface{}{
			"error_code": result.ErrorCode, "error_message": result.ErrorMessage,
		})
		if s.webhooks != nil {
			s.webhooks.Emit(webhooks.EventConversionFailed, map[string]interface{}{"request_id": requestID})
		}
		writeJSON(w, http.StatusUnprocessableEntity, convertResponse{
			RequestID: requestID, Success: false,
			ErrorCode: result.ErrorCode, ErrorMessage: result.ErrorMessage,
			Diagnostics: result.Diagnostics,
		})
		return
	}

	_ = s.cache.Set(ctx, cacheKey, result.PDF, time.Hour)
	s.publish(events.TypeConversionCompleted, requestID, map[string]interface{}{"duration_ms": duration.Milliseconds()})
	if s.webhooks != nil {
		s.webhooks.Emit(webhooks.EventConversionCompleted, map[string]interface{}{"request_id": requestID})
	}

	s.writePDF(w, result.PDF, convertResponse{RequestID: requestID, Success: true, Diagnostics: result.Diagnostics})
}

func (s *Server) writePDF(w http.ResponseWriter, pdf []byte, meta convertResponse) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("X-SlimLO-Request-ID", meta.RequestID)
	if meta.Cached {
		w.Header().Set("X-SlimLO-Cache", "hit")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// recordAudit writes on a background context: audit logging must outlive
// the HTTP request that triggered the conversion it's recording.
func (s *Server) recordAudit(requestID, format string, result *slimlo.Result, duration time.Duration) {
	if s.audit == nil {
		return
	}
	s.audit.LogEntry(context.Background(), audit.Entry{
		RequestID:   requestID,
		Format:      format,
		Success:     result.Success,
		ErrorCode:   int(result.ErrorCode),
		DurationMS:  duration.Milliseconds(),
		ConvertedAt: time.Now(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workers":           stats.Workers,
		"active":            stats.Active,
		"total_conversions": stats.TotalConversions,
		"crash_count":       stats.CrashCount,
		"engine_version":    stats.EngineVersion,
		"stream":            s.stream.Stats(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookRegistry == nil {
		http.Error(w, "webhooks are not configured", http.StatusNotImplemented)
		return
	}
	var sub webhooks.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.webhookRegistry.Register(&sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
