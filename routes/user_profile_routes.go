package routes

import (
	"anniversary_server/controllers"
	"anniversary_server/services"

	"github.com/gorilla/mux"
)

// RegisterParticipantRoutes sets up participant routes under /api/participants
func RegisterParticipantRoutes(r *mux.Router, pairing *services.PairingService) {
	controller := controllers.NewParticipantController(pairing)

	participantRouter := r.PathPrefix("/api/participants").Subrouter()
	participantRouter.HandleFunc("/{id}", controller.GetParticipantHandler).Methods("GET")
	participantRouter.HandleFunc("/{id}/notification-handle", controller.UpdateNotificationHandleHandler).Methods("PUT")
}
