package handlers

import (
	"net/http"

	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/services"
)

// ProjectHandler serves creator-only project operations.
type ProjectHandler struct {
	projects  *services.ProjectService
	waitlist  *services.WaitlistService
	allocator *services.AllocatorService
}

func NewProjectHandler(projects *services.ProjectService, waitlist *services.WaitlistService, allocator *services.AllocatorService) *ProjectHandler {
	return &ProjectHandler{projects: projects, waitlist: waitlist, allocator: allocator}
}

// creatorRequest resolves the project id and checks that the caller created it.
func (h *ProjectHandler) creatorRequest(w http.ResponseWriter, r *http.Request) (projectID string, ok bool) {
	projectID, err := getIDFromURL(r, "projectID")
	if err != nil {
		badRequestResponse(w, r, err)
		return "", false
	}
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return "", false
	}
	if _, err := h.projects.AuthorizeCreator(r.Context(), projectID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return "", false
	}
	return projectID, true
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

// Invite godoc
// @Summary Пригласить пользователя в проект
// @Tags projects
// @Accept json
// @Produce json
// @Param projectID path string true "Project ID"
// @Param body body inviteRequest true "Приглашаемый пользователь"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 403 {object} map[string]string "Только создатель проекта"
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Проект закрыт или пользователь уже в листе ожидания"
// @Security BearerAuth
// @Router /projects/{projectID}/invitations [post]
func (h *ProjectHandler) Invite(w http.ResponseWriter, r *http.Request) {
	projectID, err := getIDFromURL(r, "projectID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input inviteRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	inv, err := h.waitlist.Invite(r.Context(), services.InviteInput{
		ProjectID: projectID,
		ActorID:   actorID,
		UserID:    input.UserID,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"invitation": inv}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Waitlist godoc
// @Summary Waiting participants of a project
// @Description Accepted invitations that have no team yet, oldest first.
// @Tags projects
// @Produce json
// @Param projectID path string true "Project ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /projects/{projectID}/waitlist [get]
func (h *ProjectHandler) Waitlist(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.creatorRequest(w, r)
	if !ok {
		return
	}

	list, err := h.waitlist.ListWaiting(r.Context(), projectID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"waiting": list, "count": len(list)}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Allocate godoc
// @Summary Распределить лист ожидания по командам
// @Tags projects
// @Description Повторный вызов распределяет только тех, кто ещё не в команде.
// @Produce json
// @Param projectID path string true "Project ID"
// @Success 200 {object} services.AllocationResult
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /projects/{projectID}/allocate [post]
func (h *ProjectHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.creatorRequest(w, r)
	if !ok {
		return
	}

	result, err := h.allocator.AllocateAll(r.Context(), projectID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ResetJoinCode godoc
// @Summary Issue a new join code
// @Tags projects
// @Produce json
// @Param projectID path string true "Project ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /projects/{projectID}/join-code/reset [post]
func (h *ProjectHandler) ResetJoinCode(w http.ResponseWriter, r *http.Request) {
	projectID, err := getIDFromURL(r, "projectID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	actorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	project, err := h.projects.ResetJoinCode(r.Context(), projectID, actorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	response := jsonResponse{
		"project_id":           project.ID,
		"join_code":            project.JoinCode,
		"join_code_expires_at": project.JoinCodeExpiresAt,
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
