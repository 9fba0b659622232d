package routes

import (
	"anniversary_server/controllers"
	"anniversary_server/services"

	"github.com/gorilla/mux"
)

// RegisterMediaRoutes sets up routes for presigned media URLs
func RegisterMediaRoutes(r *mux.Router, media *services.MediaService) {
	controller := controllers.NewMediaController(media)

	mediaRouter := r.PathPrefix("/api/media").Subrouter()
	mediaRouter.HandleFunc("/upload-url", controller.GeneratePresignedURL).Methods("POST")
	mediaRouter.HandleFunc("/read-url", controller.GetPresignedReadURL).Methods("POST")
}
