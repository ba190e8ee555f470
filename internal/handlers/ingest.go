package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"pipeline/internal/envelope"
	"pipeline/internal/pipeline"
	"pipeline/internal/schema"
)

// IngestHandler accepts raw wire documents over HTTP and routes them
// through the pipeline core: decode, validate, envelope, forward to the
// outbound destination.
type IngestHandler struct {
	core        *pipeline.Pipeline
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler.
type IngestConfig struct {
	Core        *pipeline.Pipeline
	MaxBodySize int64
}

// NewIngestHandler creates an ingest handler.
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 10 * 1024 * 1024 // 10MB default
	}
	return &IngestHandler{
		core:        cfg.Core,
		maxBodySize: maxBodySize,
	}
}

// ingestRequest is the request body: one document or a batch.
type ingestRequest struct {
	Documents []json.RawMessage `json:"documents,omitempty"`
}

// IngestResponse is the response returned to clients.
type IngestResponse struct {
	Success  bool          `json:"success"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Ignored  int           `json:"ignored"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes why a specific document was rejected.
type IngestError struct {
	Index  int                 `json:"index"`
	JobID  string              `json:"job_id,omitempty"`
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// ServeHTTP handles the ingest HTTP request.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	docs, err := parseBody(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(docs) == 0 {
		h.writeError(w, http.StatusBadRequest, "no documents provided")
		return
	}

	response := h.processDocuments(r, docs)

	w.Header().Set("Content-Type", "application/json")
	if response.Rejected > 0 && response.Accepted == 0 && response.Ignored == 0 {
		w.WriteHeader(http.StatusBadRequest)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// parseBody accepts {"documents": [...]}, a bare array, or one wire
// document.
func parseBody(body []byte) ([]json.RawMessage, error) {
	var req ingestRequest
	if err := json.Unmarshal(body, &req); err == nil && len(req.Documents) > 0 {
		return req.Documents, nil
	}

	var docs []json.RawMessage
	if err := json.Unmarshal(body, &docs); err == nil && len(docs) > 0 {
		return docs, nil
	}

	var single map[string]json.RawMessage
	if err := json.Unmarshal(body, &single); err == nil && len(single) > 0 {
		return []json.RawMessage{body}, nil
	}

	return nil, errors.New("invalid JSON: expected a wire document or an array of documents")
}

// processDocuments routes each raw document through the core and
// forwards accepted envelopes.
func (h *IngestHandler) processDocuments(r *http.Request, docs []json.RawMessage) IngestResponse {
	response := IngestResponse{Success: true}
	ctx := r.Context()

	for i, raw := range docs {
		env, err := h.core.Receive(ctx, raw)
		if err != nil {
			if errors.Is(err, pipeline.ErrProviderIgnored) {
				response.Ignored++
				continue
			}
			response.Rejected++
			response.Errors = append(response.Errors, toIngestError(i, env, err))
			continue
		}

		if err := h.core.Forward(ctx, env); err != nil {
			response.Rejected++
			response.Errors = append(response.Errors, toIngestError(i, env, err))
			continue
		}
		response.Accepted++
	}

	response.Success = response.Rejected == 0
	return response
}

func toIngestError(index int, env *envelope.Envelope, err error) IngestError {
	ie := IngestError{Index: index, Error: err.Error()}
	if env != nil {
		ie.JobID = env.JobID
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		ie.Fields = verr.Fields
	}
	return ie
}

// writeError writes an error response.
func (h *IngestHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
