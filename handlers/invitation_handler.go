package handlers

import (
	"errors"
	"net/http"

	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/services"
)

type InvitationHandler struct {
	waitlist *services.WaitlistService
}

func NewInvitationHandler(waitlist *services.WaitlistService) *InvitationHandler {
	return &InvitationHandler{waitlist: waitlist}
}

// ListPending godoc
// @Summary Pending invitations of the current user
// @Tags invitations
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /invitations/pending [get]
func (h *InvitationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	list, err := h.waitlist.ListPending(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"invitations": list}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type respondRequest struct {
	Accept *bool `json:"accept"`
}

// Respond godoc
// @Summary Принять или отклонить приглашение
// @Tags invitations
// @Accept json
// @Produce json
// @Param invitationID path string true "Invitation ID"
// @Param body body respondRequest true "accept: true - принять, false - отклонить"
// @Success 200 {object} services.Outcome
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string "Приглашение другого пользователя"
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Проект закрыт или приглашение уже обработано"
// @Security BearerAuth
// @Router /invitations/{invitationID}/respond [post]
func (h *InvitationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	invitationID, err := getIDFromURL(r, "invitationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input respondRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Accept == nil {
		badRequestResponse(w, r, errors.New("accept is required"))
		return
	}

	outcome, err := h.waitlist.Respond(r.Context(), invitationID, userID, *input.Accept)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeOutcome(w, r, outcome)
}
