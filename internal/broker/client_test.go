package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_FetchInstruments_ParsesRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instruments" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"instrument_token":738561,"tradingsymbol":"RELIANCE","name":"Reliance Industries"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() string { return "tok" })
	records, err := c.FetchInstruments(context.Background())
	if err != nil {
		t.Fatalf("FetchInstruments() error = %v", err)
	}
	if len(records) != 1 || records[0].Token != 738561 || records[0].Symbol != "RELIANCE" {
		t.Fatalf("FetchInstruments() = %+v", records)
	}
}

func TestClient_Do_RetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"user_id":"AB1234","user_name":"Test"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() string { return "tok" }, WithRetries(5, time.Millisecond))
	profile, err := c.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.UserID != "AB1234" {
		t.Fatalf("FetchProfile() = %+v", profile)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestClient_Do_4xxFailsImmediatelyNoRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() string { return "bad" }, WithRetries(5, time.Millisecond))
	if _, err := c.FetchProfile(context.Background()); err == nil {
		t.Fatal("expected error on 401")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on 4xx)", attempts)
	}
}

func TestClient_Validate_SatisfiesProfileValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id":"AB1234"}`))
	}))
	defer srv.Close()

	var v ProfileValidator = NewClient(srv.URL, func() string { return "tok" })
	if err := v.Validate(context.Background()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
