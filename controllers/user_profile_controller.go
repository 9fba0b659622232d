package controllers

import (
	"net/http"

	"anniversary_server/services"
	"anniversary_server/utils"

	"github.com/gorilla/mux"
)

// ParticipantController serves participant profiles.
type ParticipantController struct {
	Pairing *services.PairingService
}

func NewParticipantController(pairing *services.PairingService) *ParticipantController {
	return &ParticipantController{Pairing: pairing}
}

func (c *ParticipantController) GetParticipantHandler(w http.ResponseWriter, r *http.Request) {
	p, err := c.Pairing.GetParticipant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, p)
}

// UpdateNotificationHandleHandler stores the device token pushes go to.
func (c *ParticipantController) UpdateNotificationHandleHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceToken string `json:"deviceToken"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := c.Pairing.UpdateNotificationHandle(r.Context(), id, req.DeviceToken); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Notification handle updated", "id": id})
}
