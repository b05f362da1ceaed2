// controllers/admin.go
package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"sparknexora-backend/middleware"
	"sparknexora-backend/models"
	"sparknexora-backend/storage"
	"sparknexora-backend/utils"
)

// AdminController serves the dashboard and order management endpoints
type AdminController struct {
	Contacts storage.ContactStore
	Orders   storage.OrderStore
}

// NewAdminController creates a new AdminController
func NewAdminController(contacts storage.ContactStore, orders storage.OrderStore) *AdminController {
	return &AdminController{Contacts: contacts, Orders: orders}
}

// Dashboard returns the contact overview statistics
func (adc *AdminController) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byStatus, err := adc.Contacts.CountByStatus(ctx)
	if err != nil {
		log.Printf("Error fetching dashboard stats: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch dashboard statistics")
		return
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}

	now := time.Now()
	recent, err := adc.Contacts.CountCreatedSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		log.Printf("Error fetching dashboard stats: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch dashboard statistics")
		return
	}
	monthly, err := adc.Contacts.CountCreatedSince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		log.Printf("Error fetching dashboard stats: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch dashboard statistics")
		return
	}

	respondData(w, http.StatusOK, "", map[string]interface{}{
		"overview": map[string]interface{}{
			"totalContacts":   total,
			"newContacts":     byStatus["new"],
			"readContacts":    byStatus["read"],
			"repliedContacts": byStatus["replied"],
			"closedContacts":  byStatus["closed"],
			"recentContacts":  recent,
			"monthlyContacts": monthly,
		},
	})
}

// RecentContacts returns the newest inquiries
func (adc *AdminController) RecentContacts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if limit <= 0 {
		limit = 5
	}

	contacts, _, err := adc.Contacts.List(r.Context(), storage.ContactFilter{
		Page:     1,
		Limit:    limit,
		SortBy:   "createdAt",
		SortDesc: true,
	})
	if err != nil {
		log.Printf("Error fetching recent contacts: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch recent contacts")
		return
	}
	respondData(w, http.StatusOK, "", contacts)
}

// ListOrders returns the newest orders
func (adc *AdminController) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if limit <= 0 {
		limit = 50
	}

	orders, err := adc.Orders.List(r.Context(), limit)
	if err != nil {
		log.Printf("Error fetching orders: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}
	respondData(w, http.StatusOK, "", orders)
}

var validOrderStatuses = map[models.OrderStatus]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusPaid:       true,
	models.OrderStatusProcessing: true,
	models.OrderStatusCompleted:  true,
	models.OrderStatusCancelled:  true,
	models.OrderStatusRefunded:   true,
}

// UpdateOrderStatus lets an admin move an order through its lifecycle
func (adc *AdminController) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validOrderStatuses[body.Status] {
		respondError(w, http.StatusBadRequest, "Invalid order status")
		return
	}

	if err := adc.Orders.UpdateStatus(r.Context(), id, body.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Printf("Error updating order status: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to update order status")
		return
	}
	respondData(w, http.StatusOK, "Order status updated successfully", nil)
}

// AddOrderNote appends an admin note to an order
func (adc *AdminController) AddOrderNote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Note == "" {
		respondError(w, http.StatusBadRequest, "Note is required")
		return
	}

	addedBy := "Admin"
	if claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims); ok {
		addedBy = claims.Email
	}

	err := adc.Orders.AddNote(r.Context(), id, models.AdminNote{
		Note:    body.Note,
		AddedBy: addedBy,
		AddedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Printf("Error adding order note: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to add note")
		return
	}
	respondData(w, http.StatusOK, "Note added successfully", nil)
}
