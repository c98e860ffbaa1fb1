package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/realtime"
)

type WebSocketHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler принимает список разрешённых Origin; "*" разрешает любой.
func NewWebSocketHandler(hub *realtime.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{hub: hub, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// ServeWs godoc
// @Summary Поток уведомлений текущего пользователя
// @Tags notifications
// @Description WebSocket. Токен передаётся в заголовке Authorization или параметре token.
// @Param token query string false "JWT"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} map[string]string
// @Router /ws/notifications [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return
	}

	client := realtime.NewClient(h.hub, conn, realtime.UserRoom(userID))
	if !h.hub.Join(client) {
		h.logger.WarnContext(r.Context(), "websocket hub stopped, closing connection", slog.String("user_id", userID))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
