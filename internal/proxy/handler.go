package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"playgate/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler exposes the session API and the proxy endpoint using go-chi.
type Handler struct {
	sessions *SessionManager
	rewriter *Rewriter
	upstream *UpstreamClient
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler wired to the given collaborators. Metrics may
// be nil to disable metric recording (e.g. in tests).
func NewHandler(sessions *SessionManager, rewriter *Rewriter, upstream *UpstreamClient, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{sessions: sessions, rewriter: rewriter, upstream: upstream, log: log, metrics: m}
}

type createSessionRequest struct {
	SourceURL string `json:"sourceUrl"`
	PlayURL   string `json:"playUrl"` // legacy field name for the source URL
	Title     string `json:"title"`
	SourceID  string `json:"sourceId"`
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	PlayID    string `json:"playId"`
	PlayerURL string `json:"playerUrl"`
}

type sessionPayload struct {
	PlayID      string    `json:"playId"`
	Title       string    `json:"title"`
	SourceID    string    `json:"sourceId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	AccessCount int64     `json:"accessCount"`
}

type sessionResponse struct {
	Success bool           `json:"success"`
	Session sessionPayload `json:"session"`
}

type statsResponse struct {
	Success        bool `json:"success"`
	TotalSessions  int  `json:"totalSessions"`
	ActiveSessions int  `json:"activeSessions"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type okResponse struct {
	Success bool `json:"success"`
}

// CreatePlaySession handles POST /create-play-session.
// Body: { "sourceUrl": "...", "title": "..." }; "playUrl" is accepted in
// place of "sourceUrl" for backward compatibility.
func (h *Handler) CreatePlaySession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid create session body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	sourceURL := req.SourceURL
	if sourceURL == "" {
		sourceURL = req.PlayURL
	}

	id, err := h.sessions.Create(sourceURL, req.Title, req.SourceID)
	if err != nil {
		h.log.Info("create session rejected", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sourceUrl and title are required"})
		return
	}

	h.log.Info("play session created",
		slog.String("play_id", string(id)),
		slog.String("title", req.Title))
	if h.metrics != nil {
		h.metrics.IncSessionsCreated()
	}

	writeJSON(w, http.StatusOK, createSessionResponse{
		Success:   true,
		PlayID:    string(id),
		PlayerURL: "/player?id=" + string(id),
	})
}

// GetPlaySession handles GET /play-session/{id}. The raw source URL is
// withheld from the payload; players go through /proxy instead.
func (h *Handler) GetPlaySession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing session id"})
		return
	}

	s, err := h.sessions.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "play session not found or expired"})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Success: true,
		Session: sessionPayload{
			PlayID:      string(s.ID),
			Title:       s.Title,
			SourceID:    s.SourceID,
			CreatedAt:   s.CreatedAt,
			AccessCount: s.AccessCount,
		},
	})
}

// DeletePlaySession handles DELETE /play-session/{id}.
func (h *Handler) DeletePlaySession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing session id"})
		return
	}

	if !h.sessions.Delete(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "play session not found"})
		return
	}

	h.log.Info("play session deleted", slog.String("play_id", string(id)))
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.sessions.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Success:        true,
		TotalSessions:  stats.TotalSessions,
		ActiveSessions: stats.ActiveSessions,
	})
}

// Proxy handles GET /proxy?url=<absolute upstream URL>. Playlists are
// buffered, rewritten, and sent whole; everything else is streamed through
// unmodified.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	if h.metrics != nil {
		h.metrics.IncProxyFetches()
	}

	resp, err := h.upstream.Fetch(r.Context(), rawURL)
	if err != nil {
		h.log.Error("upstream fetch failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
		if h.metrics != nil {
			h.metrics.IncUpstreamFailures()
		}
		http.Error(w, "upstream fetch failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	if isPlaylistURL(rawURL) {
		h.servePlaylist(w, resp, rawURL)
		return
	}
	h.serveSegment(w, resp, rawURL)
}

// servePlaylist buffers the playlist body, rewrites it, and sends the result.
// Nothing is written until the rewrite succeeds, so a malformed playlist
// never reaches the client half-rewritten.
func (h *Handler) servePlaylist(w http.ResponseWriter, resp *http.Response, rawURL string) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.log.Error("reading playlist body failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
		if h.metrics != nil {
			h.metrics.IncUpstreamFailures()
		}
		http.Error(w, "upstream fetch failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rewritten, err := h.rewriter.Rewrite(string(body), rawURL)
	if err != nil {
		h.log.Error("playlist rewrite failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
		http.Error(w, "failed to rewrite playlist", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rewritten))

	if h.metrics != nil {
		h.metrics.IncPlaylistsRewritten()
	}
}

// serveSegment pipes the upstream body through unmodified. Segments are
// immutable once published, so intermediary caching is allowed.
func (h *Handler) serveSegment(w http.ResponseWriter, resp *http.Response, rawURL string) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp2t"
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already out; all we can do is note the broken stream.
		h.log.Debug("segment stream interrupted",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
	}
}

// isPlaylistURL reports whether the upstream URL references a playlist and
// should therefore be rewritten rather than streamed.
func isPlaylistURL(rawURL string) bool {
	return strings.Contains(rawURL, ".m3u8")
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Range")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
