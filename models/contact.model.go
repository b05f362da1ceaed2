package models

import "time"

// Contact represents an inquiry submitted through the website contact form.
type Contact struct {
	ID            string      `bson:"_id,omitempty" json:"id,omitempty"`
	Name          string      `bson:"name" json:"name"`
	Email         string      `bson:"email" json:"email"`
	Phone         string      `bson:"phone,omitempty" json:"phone,omitempty"`
	Company       string      `bson:"company,omitempty" json:"company,omitempty"`
	Subject       string      `bson:"subject,omitempty" json:"subject,omitempty"`
	Message       string      `bson:"message" json:"message"`
	Service       string      `bson:"service,omitempty" json:"service,omitempty"`
	Budget        string      `bson:"budget,omitempty" json:"budget,omitempty"`
	Timeline      string      `bson:"timeline,omitempty" json:"timeline,omitempty"`
	Status        string      `bson:"status" json:"status"`     // "new", "read", "replied", "closed"
	Priority      string      `bson:"priority" json:"priority"` // "low", "medium", "high"
	Source        string      `bson:"source" json:"source"`
	IPAddress     string      `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent     string      `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	AdminNotes    []AdminNote `bson:"admin_notes,omitempty" json:"adminNotes,omitempty"`
	LastContacted *time.Time  `bson:"last_contacted,omitempty" json:"lastContacted,omitempty"`
	Tags          []string    `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt     time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `bson:"updated_at" json:"updatedAt"`
}
