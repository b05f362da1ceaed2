// controllers/contact.go
package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"sparknexora-backend/middleware"
	"sparknexora-backend/models"
	"sparknexora-backend/storage"
	"sparknexora-backend/utils"
)

// ContactController handles contact-form submissions and admin triage
type ContactController struct {
	Contacts     storage.ContactStore
	EmailService *utils.EmailService
	AdminEmail   string
}

// NewContactController creates a new ContactController
func NewContactController(contacts storage.ContactStore, emailService *utils.EmailService, adminEmail string) *ContactController {
	return &ContactController{
		Contacts:     contacts,
		EmailService: emailService,
		AdminEmail:   adminEmail,
	}
}

// Create stores a new contact message from the website form
func (cc *ContactController) Create(w http.ResponseWriter, r *http.Request) {
	var contact models.Contact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := middleware.ValidateContact(&contact); len(errs) > 0 {
		respondJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Message: "Validation failed",
			Errors:  errs,
		})
		return
	}

	contact.Status = "new"
	contact.Priority = "medium"
	contact.Source = "website"
	contact.UserAgent = r.UserAgent()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		contact.IPAddress = host
	} else {
		contact.IPAddress = r.RemoteAddr
	}

	if err := cc.Contacts.Insert(r.Context(), &contact); err != nil {
		log.Printf("Error creating contact: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to send message. Please try again.")
		return
	}

	if cc.AdminEmail != "" {
		saved := contact
		go func() {
			if err := cc.EmailService.SendContactNotificationEmail(cc.AdminEmail, saved); err != nil {
				log.Printf("Failed to send contact notification: %v", err)
			}
		}()
	}

	respondData(w, http.StatusCreated,
		"Thank you for your message! We will get back to you within 24 hours.",
		map[string]interface{}{
			"id":        contact.ID,
			"name":      contact.Name,
			"email":     contact.Email,
			"subject":   contact.Subject,
			"status":    contact.Status,
			"createdAt": contact.CreatedAt,
		})
}

// List returns contacts with filtering and pagination
func (cc *ContactController) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.ParseInt(q.Get("page"), 10, 64)
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	filter := storage.ContactFilter{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Service:  q.Get("service"),
		Search:   q.Get("search"),
		Page:     page,
		Limit:    limit,
		SortBy:   q.Get("sortBy"),
		SortDesc: q.Get("sortOrder") != "asc",
	}

	contacts, total, err := cc.Contacts.List(r.Context(), filter)
	if err != nil {
		log.Printf("Error fetching contacts: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch contacts")
		return
	}

	totalPages := (total + limit - 1) / limit
	respondData(w, http.StatusOK, "", map[string]interface{}{
		"contacts": contacts,
		"pagination": map[string]interface{}{
			"currentPage":   page,
			"totalPages":    totalPages,
			"totalContacts": total,
			"hasNext":       page < totalPages,
			"hasPrev":       page > 1,
		},
	})
}

// GetByID returns a single contact
func (cc *ContactController) GetByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	contact, err := cc.Contacts.FindByID(r.Context(), id)
	if err != nil {
		cc.respondStoreError(w, err, "Failed to fetch contact")
		return
	}
	respondData(w, http.StatusOK, "", contact)
}

// UpdateStatus updates the triage status and priority of a contact
func (cc *ContactController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Status   string `json:"status"`
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch := storage.ContactPatch{}
	if body.Status != "" {
		patch.Status = &body.Status
	}
	if body.Priority != "" {
		patch.Priority = &body.Priority
	}

	contact, err := cc.Contacts.Update(r.Context(), id, patch)
	if err != nil {
		cc.respondStoreError(w, err, "Failed to update contact")
		return
	}
	respondData(w, http.StatusOK, "Contact updated successfully", contact)
}

// AddNote appends an admin note to a contact
func (cc *ContactController) AddNote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Note    string `json:"note"`
		AddedBy string `json:"addedBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Note == "" {
		respondError(w, http.StatusBadRequest, "Note is required")
		return
	}
	if body.AddedBy == "" {
		body.AddedBy = "Admin"
	}

	contact, err := cc.Contacts.AddNote(r.Context(), id, models.AdminNote{
		Note:    body.Note,
		AddedBy: body.AddedBy,
		AddedAt: time.Now(),
	})
	if err != nil {
		cc.respondStoreError(w, err, "Failed to add note")
		return
	}
	respondData(w, http.StatusOK, "Note added successfully", contact)
}

// Delete removes a contact
func (cc *ContactController) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := cc.Contacts.Delete(r.Context(), id); err != nil {
		cc.respondStoreError(w, err, "Failed to delete contact")
		return
	}
	respondData(w, http.StatusOK, "Contact deleted successfully", nil)
}

func (cc *ContactController) respondStoreError(w http.ResponseWriter, err error, generic string) {
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Contact not found")
		return
	}
	log.Printf("%s: %v", generic, err)
	respondError(w, http.StatusInternalServerError, generic)
}
