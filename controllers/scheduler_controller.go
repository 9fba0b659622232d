package controllers

import (
	"net/http"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/clock"
	"anniversary_server/services"
	"anniversary_server/utils"

	"github.com/gorilla/mux"
)

// SchedulerController lets an external trigger (cron, a client's periodic
// task) tick one relationship.
type SchedulerController struct {
	Scheduler *services.DeliveryScheduler
	Clock     clock.Clock
}

func NewSchedulerController(scheduler *services.DeliveryScheduler, clk clock.Clock) *SchedulerController {
	if clk == nil {
		clk = clock.System()
	}
	return &SchedulerController{Scheduler: scheduler, Clock: clk}
}

// TickHandler runs one tick. ?at=<RFC3339> overrides the evaluation time.
func (c *SchedulerController) TickHandler(w http.ResponseWriter, r *http.Request) {
	now := c.Clock.Now()
	if at := r.URL.Query().Get("at"); at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			utils.WriteError(w, apperrors.Validation("tick", "at %q is not an RFC3339 time", at))
			return
		}
		now = parsed
	}

	result, err := c.Scheduler.Tick(r.Context(), mux.Vars(r)["relationshipId"], now)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, result)
}
