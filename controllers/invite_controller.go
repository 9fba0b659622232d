package controllers

import (
	"errors"
	"net/http"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/logger"
	"anniversary_server/models"
	"anniversary_server/services"
	"anniversary_server/utils"

	"github.com/gorilla/mux"
)

// PairingController handles relationship creation and couple code redemption.
type PairingController struct {
	Pairing *services.PairingService
}

func NewPairingController(pairing *services.PairingService) *PairingController {
	return &PairingController{Pairing: pairing}
}

type createRelationshipRequest struct {
	InitiatorName         string `json:"initiatorName"`
	RelationshipStartDate string `json:"relationshipStartDate"`
}

type createRelationshipResponse struct {
	Relationship *models.Relationship `json:"relationship"`
	Initiator    *models.Participant  `json:"initiator"`
}

// parseStartDate accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func parseStartDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, apperrors.Validation("create relationship", "relationshipStartDate is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, apperrors.Validation("create relationship", "relationshipStartDate %q is not a date", s)
	}
	return t, nil
}

// CreateRelationshipHandler registers the initiator and returns the couple code.
func (c *PairingController) CreateRelationshipHandler(w http.ResponseWriter, r *http.Request) {
	var req createRelationshipRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	start, err := parseStartDate(req.RelationshipStartDate)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	rel, initiator, err := c.Pairing.CreateRelationship(r.Context(), req.InitiatorName, start)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, createRelationshipResponse{Relationship: rel, Initiator: initiator})
}

func (c *PairingController) GetRelationshipHandler(w http.ResponseWriter, r *http.Request) {
	rel, err := c.Pairing.GetRelationship(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"relationship": rel,
		"state":        rel.State(),
	})
}

// RedeemCodeHandler pairs the caller with the relationship holding the code.
// A failed link step answers 503 with the ids needed to retry it.
func (c *PairingController) RedeemCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CoupleCode  string `json:"coupleCode"`
		PartnerName string `json:"partnerName"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	rel, err := c.Pairing.RedeemCode(r.Context(), req.CoupleCode, req.PartnerName)
	var linkErr *services.LinkError
	if errors.As(err, &linkErr) {
		logger.WithRelationship(linkErr.RelationshipID).Warn().Err(err).Str("participantId", linkErr.ParticipantID).Msg("⚠️ redemption link step failed")
		utils.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
			"error":          err.Error(),
			"kind":           apperrors.ErrStoreUnavailable.Error(),
			"relationshipId": linkErr.RelationshipID,
			"participantId":  linkErr.ParticipantID,
		})
		return
	}
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, rel)
}

// LinkPartnerHandler retries the link step of a redemption.
func (c *PairingController) LinkPartnerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID string `json:"participantId"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	rel, err := c.Pairing.LinkPartner(r.Context(), mux.Vars(r)["id"], req.ParticipantID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, rel)
}

func (c *PairingController) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.Pairing.Deactivate(r.Context(), id); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Relationship deactivated", "id": id})
}
