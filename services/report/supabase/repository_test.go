package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/social_layer/internal/database"
	"github.com/R3E-Network/social_layer/supabase/client"
)

func newRepoWithHandler(t *testing.T, handler http.Handler) *Repository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{URL: srv.URL, APIKey: "anon"})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return NewRepository(database.NewRepository(c))
}

func TestRepository_CreateDefaultsToOpen(t *testing.T) {
	var sent Report
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &sent); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("[" + string(body) + "]"))
	}))

	rep := &Report{ReporterID: "u1", TargetType: TargetUser, TargetID: "u2", Reason: "spam"}
	if err := repo.Create(context.Background(), rep); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sent.Status != StatusOpen || sent.ID == "" {
		t.Fatalf("unexpected report: %+v", sent)
	}

	bad := &Report{ReporterID: "u1", TargetType: "chat", TargetID: "c1", Reason: "spam"}
	if err := repo.Create(context.Background(), bad); !database.IsInvalidInput(err) {
		t.Fatalf("expected invalid input for target type, got %v", err)
	}
}

func TestRepository_ListByStatus(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "eq.open" || r.URL.Query().Get("order") != "created_at.asc" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"r1","status":"open"}]`))
	}))
	reports, err := repo.ListByStatus(context.Background(), StatusOpen)
	if err != nil || len(reports) != 1 {
		t.Fatalf("ListByStatus = %v, %v", reports, err)
	}
	if _, err := repo.ListByStatus(context.Background(), "archived"); !database.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		if r.Method != http.MethodPatch || body["status"] != "resolved" || body["resolved_by"] != "admin" {
			t.Fatalf("unexpected update: %s %s", r.Method, data)
		}
		_, _ = w.Write([]byte(`[{"id":"r1","status":"resolved"}]`))
	}))
	err := repo.UpdateStatus(context.Background(), "r1", StatusUpdate{Status: StatusResolved, ResolvedBy: "admin", ResolvedAt: time.Now()})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
}
