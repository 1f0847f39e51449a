// Package api serves the request/response reads that complement the realtime
// channel: message history, unread summaries, and the notification inbox.
// The caller's identity arrives in an X-User-ID header set by the upstream
// auth gateway; this service never sees credentials.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/ayushgarg2005/Chat-Application/internal/chat"
	"github.com/ayushgarg2005/Chat-Application/internal/store"
)

// identityHeader carries the authenticated user id.
const identityHeader = "X-User-ID"

// Handler serves the /api/ endpoint tree.
type Handler struct {
	store    *store.Store
	pipeline *chat.Pipeline
	mux      *http.ServeMux
}

// NewHandler builds the /api/ routing table. Mark-read over HTTP flows
// through the same pipeline as the markRead frame so read receipts reach the
// original sender either way.
func NewHandler(s *store.Store, pipeline *chat.Pipeline) *Handler {
	h := &Handler{store: s, pipeline: pipeline, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/messages/{withUserId}", h.handleHistory)
	h.mux.HandleFunc("GET /api/public-messages", h.handlePublicHistory)
	h.mux.HandleFunc("GET /api/unread-senders", h.handleUnreadSenders)
	h.mux.HandleFunc("POST /api/messages/mark-read/{senderId}", h.handleMarkRead)
	h.mux.HandleFunc("GET /api/notifications", h.handleNotifications)
	h.mux.HandleFunc("GET /api/notifications/unreadCount", h.handleUnreadCount)
	h.mux.HandleFunc("POST /api/notifications/read", h.handleNotificationRead)
	h.mux.HandleFunc("POST /api/notifications/respond", h.handleNotificationRespond)
	h.mux.HandleFunc("GET /api/connected", h.handleConnected)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// identity extracts the caller's user id from the gateway header. Writes a
// 401 and returns false when the header is missing or malformed.
func identity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(identityHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+identityHeader+" header")
		return 0, false
	}
	return id, true
}

// pathID parses a numeric path segment. Writes a 400 and returns false on
// anything that is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps storage sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	log.Printf("[api] storage error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}
	withUserID, ok := pathID(w, r, "withUserId")
	if !ok {
		return
	}

	msgs, err := h.store.HistoryBetween(r.Context(), userID, withUserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) handlePublicHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.store.PublicHistory(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) handleUnreadSenders(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	senders, err := h.store.UnreadSenders(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if senders == nil {
		senders = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"senders": senders})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}
	senderID, ok := pathID(w, r, "senderId")
	if !ok {
		return
	}

	if err := h.pipeline.MarkRead(r.Context(), userID, senderID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	notifs, err := h.store.ListNotifications(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if notifs == nil {
		notifs = []store.Notification{}
	}
	writeJSON(w, http.StatusOK, notifs)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	count, err := h.store.UnreadNotificationCount(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": count})
}

func (h *Handler) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	var body struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid body: expected {\"id\": <notificationId>}")
		return
	}

	if err := h.store.MarkNotificationRead(r.Context(), body.ID, userID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleNotificationRespond(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	var body struct {
		ID       int64  `json:"id"`
		Response string `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid body: expected {\"id\", \"response\"}")
		return
	}
	if body.Response != store.StatusAccepted && body.Response != store.StatusRejected {
		writeError(w, http.StatusBadRequest, "response must be \"accepted\" or \"rejected\"")
		return
	}

	if err := h.store.RespondNotification(r.Context(), body.ID, userID, body.Response); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleConnected(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity(w, r)
	if !ok {
		return
	}

	peers, err := h.store.ConnectedPeers(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if peers == nil {
		peers = []store.ConnectedPeer{}
	}
	writeJSON(w, http.StatusOK, peers)
}
