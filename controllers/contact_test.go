package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparknexora-backend/storage"
	"sparknexora-backend/utils"
)

func newContactTestEnv(t *testing.T) (*ContactController, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewContactController(store.Contacts(), utils.NewEmailService(), ""), store
}

func TestContactCreate(t *testing.T) {
	cc, store := newContactTestEnv(t)

	body := `{"name":"Jane Doe","email":"jane@example.com","message":"Interested in the Pro package.","company":"Acme"}`
	req := httptest.NewRequest("POST", "/api/contact", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:51234"
	rec := httptest.NewRecorder()
	cc.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "new", resp.Data.Status)

	saved, err := store.Contacts().FindByID(context.Background(), resp.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", saved.Name)
	assert.Equal(t, "medium", saved.Priority)
	assert.Equal(t, "website", saved.Source)
	assert.Equal(t, "203.0.113.9", saved.IPAddress)
}

func TestContactCreateValidationFailure(t *testing.T) {
	cc, store := newContactTestEnv(t)

	req := httptest.NewRequest("POST", "/api/contact", strings.NewReader(`{"name":"Jane"}`))
	rec := httptest.NewRecorder()
	cc.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Success bool     `json:"success"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Errors, "Email is required")
	assert.Contains(t, resp.Errors, "Message is required")

	// Nothing was stored.
	_, total, err := store.Contacts().List(context.Background(), storage.ContactFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestContactCreateRejectsMalformedBody(t *testing.T) {
	cc, _ := newContactTestEnv(t)

	req := httptest.NewRequest("POST", "/api/contact", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	cc.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
