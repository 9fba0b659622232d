package controllers

import (
	"net/http"
	"time"

	"anniversary_server/services"
	"anniversary_server/utils"

	"github.com/gorilla/mux"
)

// DeliveryStatusController handles read receipts, reactions and comments.
type DeliveryStatusController struct {
	Tracker *services.DeliveryStatusTracker
}

func NewDeliveryStatusController(tracker *services.DeliveryStatusTracker) *DeliveryStatusController {
	return &DeliveryStatusController{Tracker: tracker}
}

func (c *DeliveryStatusController) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := c.Tracker.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, status)
}

// RecordReactionHandler replaces the message's reaction. "at" is optional
// and defaults to the time the request was handled.
func (c *DeliveryStatusController) RecordReactionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reaction string    `json:"reaction"`
		At       time.Time `json:"at"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	if req.At.IsZero() {
		req.At = c.Tracker.Clock.Now()
	}
	status, err := c.Tracker.RecordReaction(r.Context(), mux.Vars(r)["id"], req.Reaction, req.At)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, status)
}

func (c *DeliveryStatusController) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	status, err := c.Tracker.MarkRead(r.Context(), mux.Vars(r)["id"], c.Tracker.Clock.Now())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, status)
}

func (c *DeliveryStatusController) SetCommentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Comment string `json:"comment"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	status, err := c.Tracker.SetComment(r.Context(), mux.Vars(r)["id"], req.Comment)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, status)
}
