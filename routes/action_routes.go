package routes

import (
	"anniversary_server/controllers"
	"anniversary_server/services"

	"github.com/gorilla/mux"
)

// RegisterDeliveryStatusRoutes sets up read/reaction routes under /api/messages/{id}
func RegisterDeliveryStatusRoutes(r *mux.Router, tracker *services.DeliveryStatusTracker) {
	controller := controllers.NewDeliveryStatusController(tracker)

	statusRouter := r.PathPrefix("/api/messages/{id}").Subrouter()
	statusRouter.HandleFunc("/status", controller.GetStatusHandler).Methods("GET")
	statusRouter.HandleFunc("/reaction", controller.RecordReactionHandler).Methods("POST")
	statusRouter.HandleFunc("/read", controller.MarkReadHandler).Methods("POST")
	statusRouter.HandleFunc("/comment", controller.SetCommentHandler).Methods("PUT")
}
