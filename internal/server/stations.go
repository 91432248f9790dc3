package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stationsync/internal/downloads"
	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/shared"
)

const defaultHistoryLimit = 50

// Stations is the read side of the collection.
type Stations interface {
	Collection() models.Collection
}

// Downloads is the part of the download manager reachable over HTTP.
type Downloads interface {
	ActiveIDs() []int64
	EnqueuePlaylists(ctx context.Context, urls []string) ([]int64, error)
	RefreshAllImages(ctx context.Context) error
	OnDownloadComplete(ctx context.Context, id int64) error
}

// History lists finished downloads, newest first.
type History interface {
	Recent(limit int) ([]models.DownloadRecord, error)
}

// StationHandler serves the collection and download endpoints.
type StationHandler struct {
	stations  Stations
	downloads Downloads
	history   History
	logger    *log.Logger
	mux       *http.ServeMux
}

type enqueueRequest struct {
	URLs []string `json:"urls"`
}

type enqueueResponse struct {
	IDs []int64 `json:"ids"`
}

type completeResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Reason int    `json:"reason,omitempty"`
}

type downloadsResponse struct {
	Active  []int64                 `json:"active"`
	History []models.DownloadRecord `json:"history"`
}

// NewStationHandler wires the handler to its collaborators. history may be nil.
func NewStationHandler(stations Stations, dl Downloads, history History, logger *log.Logger) *StationHandler {
	h := &StationHandler{
		stations:  stations,
		downloads: dl,
		history:   history,
		logger:    shared.WithLogger(logger, "component", "server"),
		mux:       http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /stations", h.listStations)
	h.mux.HandleFunc("POST /playlists", h.enqueuePlaylists)
	h.mux.HandleFunc("POST /images/refresh", h.refreshImages)
	h.mux.HandleFunc("POST /downloads/{id}/complete", h.completeDownload)
	h.mux.HandleFunc("GET /downloads", h.listDownloads)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *StationHandler) Routes() []string {
	return []string{"/stations", "/playlists", "/images/", "/downloads", "/downloads/"}
}

func (h *StationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *StationHandler) listStations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stations.Collection())
}

func (h *StationHandler) enqueuePlaylists(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls must not be empty")
		return
	}

	ids, err := h.downloads.EnqueuePlaylists(r.Context(), req.URLs)
	if err != nil {
		h.logger.Error("enqueue failed", "error", err)
		if len(ids) == 0 {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{IDs: ids})
}

func (h *StationHandler) refreshImages(w http.ResponseWriter, r *http.Request) {
	if err := h.downloads.RefreshAllImages(r.Context()); err != nil {
		h.logger.Error("image refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *StationHandler) completeDownload(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid download id")
		return
	}

	err = h.downloads.OnDownloadComplete(r.Context(), id)
	var failure *downloads.DownloadFailure
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, completeResponse{ID: id, Status: "processed"})
	case errors.As(err, &failure):
		writeJSON(w, http.StatusOK, completeResponse{ID: id, Status: "failed", Reason: failure.Reason})
	case errors.Is(err, shared.ErrUnknownDownload):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("completion failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *StationHandler) listDownloads(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	resp := downloadsResponse{Active: h.downloads.ActiveIDs(), History: []models.DownloadRecord{}}
	if resp.Active == nil {
		resp.Active = []int64{}
	}
	if h.history != nil {
		records, err := h.history.Recent(limit)
		if err != nil {
			h.logger.Error("failed to read download history", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read download history")
			return
		}
		if records != nil {
			resp.History = records
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
