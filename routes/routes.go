package routes

import (
	"anniversary_server/clock"
	"anniversary_server/controllers"
	"anniversary_server/services"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up the routes for the application
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", controllers.HealthCheckHandler).Methods("GET")
	r.HandleFunc("/", controllers.WelcomeHandler).Methods("GET")
}

// RegisterSchedulerRoutes exposes the tick trigger under /api/scheduler
func RegisterSchedulerRoutes(r *mux.Router, scheduler *services.DeliveryScheduler, clk clock.Clock) {
	controller := controllers.NewSchedulerController(scheduler, clk)

	schedulerRouter := r.PathPrefix("/api/scheduler").Subrouter()
	schedulerRouter.HandleFunc("/tick/{relationshipId}", controller.TickHandler).Methods("POST")
}
