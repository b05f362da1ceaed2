// routes/routes.go
package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sparknexora-backend/controllers"
	"sparknexora-backend/middleware"
)

// RegisterRoutes sets up all the routes for the application
func RegisterRoutes(router *mux.Router, paymentController *controllers.PaymentController, contactController *controllers.ContactController, authController *controllers.AuthController, adminController *controllers.AdminController) {
	// Checkout routes (public; the webhook is authenticated by its signature)
	router.HandleFunc("/checkout", paymentController.CreateCheckoutSession).Methods("POST")
	router.HandleFunc("/checkout/return", paymentController.HandleReturn).Methods("GET")
	router.HandleFunc("/checkout/cancel", paymentController.HandleCancel).Methods("GET")
	router.HandleFunc("/checkout/webhook", paymentController.HandleWebhook).Methods("POST")
	router.HandleFunc("/checkout/status/{sessionId}", paymentController.GetPaymentStatus).Methods("GET")

	// Public contact form
	router.HandleFunc("/api/contact", contactController.Create).Methods("POST")

	// Contact management (admin dashboard)
	contacts := router.PathPrefix("/api/contact").Subrouter()
	contacts.Use(middleware.Authenticate)
	contacts.HandleFunc("", contactController.List).Methods("GET")
	contacts.HandleFunc("/{id}", contactController.GetByID).Methods("GET")
	contacts.HandleFunc("/{id}/status", contactController.UpdateStatus).Methods("PUT")
	contacts.HandleFunc("/{id}/note", contactController.AddNote).Methods("PUT")
	contacts.HandleFunc("/{id}", contactController.Delete).Methods("DELETE")

	// Auth routes
	router.HandleFunc("/api/auth/login", authController.Login).Methods("POST")
	router.HandleFunc("/api/auth/verify", authController.Verify).Methods("GET", "POST")
	router.HandleFunc("/api/auth/logout", authController.Logout).Methods("POST")

	// Admin routes
	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(middleware.Authenticate)
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/dashboard", adminController.Dashboard).Methods("GET")
	admin.HandleFunc("/recent", adminController.RecentContacts).Methods("GET")
	admin.HandleFunc("/orders", adminController.ListOrders).Methods("GET")
	admin.HandleFunc("/orders/{id}/status", adminController.UpdateOrderStatus).Methods("PUT")
	admin.HandleFunc("/orders/{id}/note", adminController.AddOrderNote).Methods("PUT")

	// Health check
	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","message":"Spark Nexora Backend API is running","timestamp":"` +
			time.Now().UTC().Format(time.RFC3339) + `"}`))
	}).Methods("GET")
}
