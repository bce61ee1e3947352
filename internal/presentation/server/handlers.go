package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"parley/backend/internal/infrastructure/postgres"

	"go.uber.org/zap"
)

type roomSummary struct {
	RoomID  string   `json:"room_id"`
	Count   int64    `json:"count"`
	Members []string `json:"members"`
}

type messageView struct {
	postgres.Message
	Username string `json:"username"`
}

func (s *WsServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRoomsHandler reports every live room with its current active members.
// Counts come from the shared store, so they span all server processes.
func (s *WsServer) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		s.log.Warn("room list failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}
	out := make([]roomSummary, 0, len(rooms))
	for _, roomID := range rooms {
		members, err := s.store.ListActive(ctx, roomID)
		if err != nil {
			continue
		}
		if len(members) == 0 {
			continue
		}
		out = append(out, roomSummary{RoomID: roomID, Count: int64(len(members)), Members: members})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *WsServer) RoomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || roomID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad room id"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	beforeID, _ := strconv.ParseUint(r.URL.Query().Get("before_id"), 10, 32)

	ctx := r.Context()
	msgs, err := s.messages.RecentMessages(ctx, uint(roomID), limit, uint(beforeID))
	if err != nil {
		s.log.Warn("message history failed", zap.Uint64("room", roomID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load messages"})
		return
	}

	// Attach sender names; a deleted account shows up as an empty name.
	names := make(map[uint]string)
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		name, ok := names[m.SenderID]
		if !ok {
			if n, err := s.messages.SenderName(ctx, m.SenderID); err == nil {
				name = n
			}
			names[m.SenderID] = name
		}
		out = append(out, messageView{Message: m, Username: name})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
