package ingestion

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/carbonsync/internal/domain"

	"github.com/google/uuid"
)

// Handler exposes the sync framework as an HTTP admin surface.
type Handler struct {
	service *Service
	mux     *http.ServeMux
}

// NewHTTPHandler wraps the service with the sync trigger, audit, and
// catalog routes.
func NewHTTPHandler(service *Service) http.Handler {
	h := &Handler{service: service, mux: http.NewServeMux()}
	h.mux.HandleFunc("/api/sync", h.handleTriggerSync)
	h.mux.HandleFunc("/api/sync/logs", h.handleSyncHistory)
	h.mux.HandleFunc("/api/sources", h.handleSources)
	h.mux.HandleFunc("/api/sources/", h.handleSourceByID)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type triggerSyncRequest struct {
	DataSourceID string `json:"dataSourceId"`
	SyncType     string `json:"syncType"`
}

func (h *Handler) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req triggerSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	dataSourceID, err := uuid.Parse(strings.TrimSpace(req.DataSourceID))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid data source id: %v", err), http.StatusBadRequest)
		return
	}

	syncType := domain.SyncType(strings.TrimSpace(req.SyncType))
	switch syncType {
	case "":
		syncType = domain.SyncTypeManual
	case domain.SyncTypeManual, domain.SyncTypeScheduled, domain.SyncTypeInitial:
	default:
		http.Error(w, fmt.Sprintf("invalid sync type %q", req.SyncType), http.StatusBadRequest)
		return
	}

	result, err := h.service.TriggerSync(r.Context(), dataSourceID, syncType)
	if err != nil {
		// A systemic failure still carries a best-effort result; return both.
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"result": result,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dataSourceID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("dataSourceId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid data source id: %v", err), http.StatusBadRequest)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	logs, err := h.service.SyncHistory(r.Context(), dataSourceID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}

type sourceRequest struct {
	Name        string `json:"name"`
	SourceType  string `json:"sourceType"`
	FileKey     string `json:"fileKey"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources, err := h.service.ListSources(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sources)
	case http.MethodPost:
		var req sourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.SourceType) == "" {
			http.Error(w, "name and sourceType are required", http.StatusBadRequest)
			return
		}

		source := domain.DataSource{
			Name:        strings.TrimSpace(req.Name),
			SourceType:  strings.TrimSpace(req.SourceType),
			FileKey:     strings.TrimSpace(req.FileKey),
			Description: strings.TrimSpace(req.Description),
			Active:      req.Active == nil || *req.Active,
		}
		created, err := h.service.CreateSource(r.Context(), source)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSourceByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/api/sources/"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid data source id: %v", err), http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		source, err := h.service.GetSource(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, source)
	case http.MethodPut:
		var req sourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		existing, err := h.service.GetSource(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if name := strings.TrimSpace(req.Name); name != "" {
			existing.Name = name
		}
		if sourceType := strings.TrimSpace(req.SourceType); sourceType != "" {
			existing.SourceType = sourceType
		}
		existing.FileKey = strings.TrimSpace(req.FileKey)
		existing.Description = strings.TrimSpace(req.Description)
		if req.Active != nil {
			existing.Active = *req.Active
		}

		updated, err := h.service.UpdateSource(r.Context(), existing)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := h.service.DeleteSource(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
