package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"email-tracker/internal/logging"
	"email-tracker/internal/models"
	"email-tracker/internal/store"
)

// Store is the persistence used by the handlers
type Store interface {
	Insert(ctx context.Context, rec models.EmailRecord) (*models.EmailRecord, error)
	Find(ctx context.Context, filter store.Filter) ([]models.EmailRecord, error)
	AddTags(ctx context.Context, id string, tags []string) (*models.EmailRecord, error)
	DeleteByID(ctx context.Context, id string) (*models.EmailRecord, error)
}

// Broadcaster pushes an event to every connected session
type Broadcaster interface {
	Broadcast(event string, payload any) error
}

type Handlers struct {
	store Store
	sink  Broadcaster
}

// New creates the HTTP handlers
func New(s Store, sink Broadcaster) *Handlers {
	return &Handlers{store: s, sink: sink}
}

// stringList accepts either a JSON array of strings or a single string
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = []string{}
		} else {
			*l = []string{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type createEmailRequest struct {
	Body    string     `json:"body"`
	Subject string     `json:"subject"`
	Date    string     `json:"date"`
	To      stringList `json:"to"`
	From    stringList `json:"from"`
}

type addTagsRequest struct {
	Tags stringList `json:"tags"`
}

// ListEmails returns every stored email
func (h *Handlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	h.find(w, r, store.Filter{})
}

// SearchEmails returns the emails whose body contains searchText, ignoring case
func (h *Handlers) SearchEmails(w http.ResponseWriter, r *http.Request) {
	h.find(w, r, store.Filter{BodyContains: r.URL.Query().Get("searchText")})
}

// FilterEmails returns the emails carrying the tag query parameter
func (h *Handlers) FilterEmails(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "Missing tag")
		return
	}
	h.find(w, r, store.Filter{Tag: tag})
}

func (h *Handlers) find(w http.ResponseWriter, r *http.Request, filter store.Filter) {
	emails, err := h.store.Find(r.Context(), filter)
	if err != nil {
		logging.Log.Errorf("Error listing emails: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, emails)
}

// CreateEmail stores an email sent by a client and pushes it to every session
func (h *Handlers) CreateEmail(w http.ResponseWriter, r *http.Request) {
	var req createEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stored, err := h.store.Insert(r.Context(), models.EmailRecord{
		Body:    req.Body,
		Subject: req.Subject,
		Date:    req.Date,
		To:      req.To,
		From:    req.From,
	})
	if err != nil {
		logging.Log.Errorf("Error creating email: %v", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	if err := h.sink.Broadcast(models.EventNewEmail, stored); err != nil {
		logging.Log.Warnf("Error broadcasting email %s: %v", stored.ID, err)
	}

	writeJSON(w, http.StatusCreated, stored)
}

// AddTags adds tags to an email, existing tags are kept once
func (h *Handlers) AddTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req addTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.store.AddTags(r.Context(), id, req.Tags)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Email not found")
		return
	}
	if err != nil {
		logging.Log.Errorf("Error tagging email %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteEmail removes an email
func (h *Handlers) DeleteEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, err := h.store.DeleteByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Email not found")
		return
	}
	if err != nil {
		logging.Log.Errorf("Error deleting email %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email deleted successfully"})
}

// Health reports that the process is serving, with the session count when known
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if counter, ok := h.sink.(interface{ Len() int }); ok {
		body["sessions"] = counter.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Log.Errorf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
