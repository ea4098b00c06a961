package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Name(t *testing.T) {
	c := NewClient(Config{})
	if c.Name() != "push" {
		t.Errorf("Name() = %q, want %q", c.Name(), "push")
	}
}

func TestClient_Send_NotConfiguredIsNoop(t *testing.T) {
	c := NewClient(Config{})
	if err := c.Send(context.Background(), "user-1", Message{Title: "t", Body: "b"}); err != nil {
		t.Errorf("expected no error when endpoint is unconfigured, got %v", err)
	}
}

func TestClient_Send_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type: %s", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	if err := c.Send(context.Background(), "user-1", Message{Title: "t", Body: "b"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClient_Send_ClassifiesPermanentVsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	err := c.Send(context.Background(), "user-1", Message{Title: "t", Body: "b"})
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if !statusErr.Permanent() {
		t.Error("expected a 400 to be classified as permanent")
	}
}
