package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/oduggan21/feynmanV2/pkg/protocol"
)

func TestCreateSession(t *testing.T) {
	sessionID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-user-id"); got != "user-42" {
			t.Errorf("x-user-id = %q", got)
		}
		var body struct {
			Topic string `json:"topic"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Topic != "Photosynthesis" {
			t.Errorf("body = %+v, err = %v", body, err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.Session{
			ID:     sessionID,
			UserID: "user-42",
			Topic:  "Photosynthesis",
			Status: protocol.SessionActive,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "user-42")
	session, err := client.CreateSession(context.Background(), "Photosynthesis")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID != sessionID || session.Status != protocol.SessionActive {
		t.Fatalf("session = %+v", session)
	}
}

func TestGetSession(t *testing.T) {
	sessionID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/sessions/"+sessionID.String() {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(protocol.Session{ID: sessionID, Topic: "Gravity"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "user-42")
	session, err := client.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Topic != "Gravity" {
		t.Fatalf("session = %+v", session)
	}
}

func TestEndSession(t *testing.T) {
	sessionID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/sessions/"+sessionID.String()+"/status" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Status protocol.SessionStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status != protocol.SessionEnded {
			t.Errorf("body = %+v, err = %v", body, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "user-42")
	if err := client.EndSession(context.Background(), sessionID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
}

func TestErrorBodyDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "session not found"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "user-42")
	_, err := client.GetSession(context.Background(), uuid.New())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "session not found" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "user-42")
	_, err := client.GetSession(context.Background(), uuid.New())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
