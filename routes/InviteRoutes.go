package routes

import (
	"anniversary_server/controllers"
	"anniversary_server/services"

	"github.com/gorilla/mux"
)

// RegisterRelationshipRoutes registers pairing routes under `/api/relationships`
func RegisterRelationshipRoutes(router *mux.Router, pairing *services.PairingService) {
	controller := controllers.NewPairingController(pairing)

	relationshipRouter := router.PathPrefix("/api/relationships").Subrouter()
	relationshipRouter.HandleFunc("", controller.CreateRelationshipHandler).Methods("POST")         // Create a relationship
	relationshipRouter.HandleFunc("/redeem", controller.RedeemCodeHandler).Methods("POST")          // Redeem a couple code
	relationshipRouter.HandleFunc("/{id}", controller.GetRelationshipHandler).Methods("GET")        // Get a relationship
	relationshipRouter.HandleFunc("/{id}/link", controller.LinkPartnerHandler).Methods("POST")      // Retry a failed link step
	relationshipRouter.HandleFunc("/{id}/deactivate", controller.DeactivateHandler).Methods("POST") // Deactivate
}
