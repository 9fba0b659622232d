package routes

import (
	"anniversary_server/controllers"
	"anniversary_server/services"

	"github.com/gorilla/mux"
)

// RegisterMessageRoutes sets up routes for authored messages
func RegisterMessageRoutes(r *mux.Router, messages *services.MessageStore, feed *services.FeedService) {
	controller := controllers.NewMessageController(messages, feed)

	r.HandleFunc("/api/messages", controller.SaveMessageHandler).Methods("POST")
	r.HandleFunc("/api/relationships/{id}/messages", controller.ListMessagesHandler).Methods("GET")
}
