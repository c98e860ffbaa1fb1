package handlers

import (
	"net/http"

	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/services"
)

type EnrollmentHandler struct {
	admission *services.AdmissionService
}

func NewEnrollmentHandler(admission *services.AdmissionService) *EnrollmentHandler {
	return &EnrollmentHandler{admission: admission}
}

type joinRequest struct {
	Code string `json:"code"`
}

// Join godoc
// @Summary Вступить в проект по коду
// @Tags enrollment
// @Description Погашает код вступления. До старта проекта пользователь попадает в лист ожидания, после старта сразу распределяется в команду.
// @Accept json
// @Produce json
// @Param body body joinRequest true "Код вступления"
// @Success 200 {object} services.Outcome "joined, already_member или waiting"
// @Failure 400 {object} map[string]interface{} "Неверный формат кода"
// @Failure 401 {object} map[string]string "Неавторизован"
// @Failure 404 {object} services.Outcome "Код не найден"
// @Failure 409 {object} services.Outcome "Проект закрыт или заполнен"
// @Failure 410 {object} services.Outcome "Срок действия кода истёк"
// @Failure 429 {object} services.Outcome "Слишком много неудачных попыток"
// @Security BearerAuth
// @Router /join [post]
func (h *EnrollmentHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input joinRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.admission.Redeem(r.Context(), services.RedeemInput{
		UserID:    userID,
		Code:      input.Code,
		IPAddress: clientIP(r),
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeOutcome(w, r, outcome)
}
