package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

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

func TestRepository_ListByUser(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/rest/v1/notifications" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if q.Get("user_id") != "eq.u1" || q.Get("order") != "created_at.desc" || q.Get("limit") != "10" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"n2","user_id":"u1","sender_id":null,"type":"message","created_at":"2026-01-02T10:00:00Z"},{"id":"n1","user_id":"u1","type":"message","created_at":"2026-01-01T10:00:00Z"}]`))
	}))

	got, err := repo.ListByUser(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != "n2" || got[0].SenderID != "" {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if _, err := repo.ListByUser(context.Background(), "", 10); !database.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRepository_CreateBatchSendsArray(t *testing.T) {
	var received []Notification
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Fatalf("body is not an array: %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	}))

	err := repo.CreateBatch(context.Background(), []Notification{
		{UserID: "u1", Type: TypeMessage, Title: "hi"},
		{UserID: "u2", Type: TypeMessage, Title: "hi"},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(received) != 2 || received[0].ID == "" || received[0].CreatedAt.IsZero() {
		t.Fatalf("rows not prepared: %+v", received)
	}

	if err := repo.CreateBatch(context.Background(), []Notification{{UserID: "u1"}}); !database.IsInvalidInput(err) {
		t.Fatalf("expected invalid input for missing type, got %v", err)
	}
}

func TestRepository_MarkAllReadFilters(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Method != http.MethodPatch {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if q.Get("user_id") != "eq.u1" || q.Get("is_read") != "is.false" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[]`))
	}))

	// Nothing unread is not an error.
	if err := repo.MarkAllRead(context.Background(), "u1"); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
}

func TestRepository_MarkReadMissing(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	if err := repo.MarkRead(context.Background(), "gone"); !database.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepository_CountUnread(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Prefer") != "count=exact" {
			t.Fatalf("missing count preference: %q", r.Header.Get("Prefer"))
		}
		w.Header().Set("Content-Range", "*/4")
	}))

	n, err := repo.CountUnread(context.Background(), "u1")
	if err != nil || n != 4 {
		t.Fatalf("CountUnread = %d, %v", n, err)
	}
}
