package handlers

import (
	"net/http"

	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/services"
)

type ChannelHandler struct {
	channels *services.ChannelService
}

func NewChannelHandler(channels *services.ChannelService) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

type channelRequest struct {
	Name string `json:"name"`
}

// GetOrCreate godoc
// @Summary Канал команды
// @Tags channels
// @Description Возвращает канал команды, создавая его при первом обращении. Вызывающий добавляется в участники канала.
// @Accept json
// @Produce json
// @Param projectID path string true "Project ID"
// @Param teamID path string true "Team ID"
// @Param body body channelRequest false "Имя канала (по умолчанию имя команды)"
// @Success 200 {object} models.Channel
// @Failure 403 {object} map[string]string "Пользователь не состоит в команде"
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /projects/{projectID}/teams/{teamID}/channel [post]
func (h *ChannelHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	projectID, err := getIDFromURL(r, "projectID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input channelRequest
	if err := readOptionalJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	channel, err := h.channels.GetOrCreate(r.Context(), services.ChannelInput{
		ProjectID: projectID,
		TeamID:    teamID,
		UserID:    userID,
		Name:      input.Name,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, channel, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
