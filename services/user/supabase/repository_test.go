package supabase

import (
	"context"
	"encoding/json"
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

func TestRepository_GetByIDsBatches(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/users" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "in.(u1,u2)" {
			t.Fatalf("unexpected id filter: %q", got)
		}
		_, _ = w.Write([]byte(`[{"id":"u1","name":"Ada"},{"id":"u2","name":"Alan"}]`))
	}))

	users, err := repo.GetByIDs(context.Background(), []string{"u1", "u2", "u1"})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestRepository_SearchByName(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("name") != "ilike.*ada*" || q.Get("is_banned") != "is.false" || q.Get("limit") != "5" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"u1","name":"Ada"}]`))
	}))

	users, err := repo.SearchByName(context.Background(), " ada ", 5)
	if err != nil || len(users) != 1 {
		t.Fatalf("SearchByName = %v, %v", users, err)
	}
	if _, err := repo.SearchByName(context.Background(), "", 5); !database.IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRepository_UpdateSendsOnlySetFields(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Query().Get("id") != "eq.u1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.RawQuery)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body) != 1 || body["city"] != "Oslo" {
			t.Fatalf("unexpected body: %v", body)
		}
		_, _ = w.Write([]byte(`[{"id":"u1"}]`))
	}))

	city := "Oslo"
	if err := repo.Update(context.Background(), "u1", UserUpdate{City: &city}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := repo.Update(context.Background(), "u1", UserUpdate{}); !database.IsInvalidInput(err) {
		t.Fatalf("expected invalid input for empty update, got %v", err)
	}
}

func TestRepository_ReplaceUserInterests(t *testing.T) {
	var deleted bool
	var inserted []UserInterest
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			deleted = r.URL.Query().Get("user_id") == "eq.u1"
			_, _ = w.Write([]byte(`[]`))
		case http.MethodPost:
			_ = json.NewDecoder(r.Body).Decode(&inserted)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`[]`))
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))

	if err := repo.ReplaceUserInterests(context.Background(), "u1", []string{"i1", "i2", "i1"}); err != nil {
		t.Fatalf("ReplaceUserInterests: %v", err)
	}
	if !deleted {
		t.Fatal("expected existing links to be deleted")
	}
	if len(inserted) != 2 || inserted[0].InterestID != "i1" || inserted[1].UserID != "u1" {
		t.Fatalf("unexpected inserted links: %+v", inserted)
	}
}

func TestRepository_CreateAssignsID(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body User
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.ID == "" || body.Role != RoleUser {
			t.Fatalf("unexpected body: %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]User{body})
	}))

	u := &User{Name: "Ada"}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated id")
	}
}
