package supabase

import (
	"context"
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

func TestRepository_CreateRatingRange(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("out of range ratings must not reach the server")
	}))
	for _, rating := range []int{0, 6, -1} {
		err := repo.Create(context.Background(), &Review{EventID: "e1", AuthorID: "u1", Rating: rating})
		if !database.IsInvalidInput(err) {
			t.Fatalf("rating %d: expected invalid input, got %v", rating, err)
		}
	}
}

func TestRepository_CreateDuplicate(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"reviews_event_id_author_id_key\""}`))
	}))
	err := repo.Create(context.Background(), &Review{EventID: "e1", AuthorID: "u1", Rating: 4})
	if !database.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRepository_GetByEventAndAuthor(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("event_id") != "eq.e1" || q.Get("author_id") != "eq.u1" || q.Get("limit") != "1" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	_, err := repo.GetByEventAndAuthor(context.Background(), "e1", "u1")
	if !database.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepository_ListByEvent(t *testing.T) {
	repo := newRepoWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order") != "created_at.desc" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"r1","event_id":"e1","author_id":"u1","rating":5}]`))
	}))
	reviews, err := repo.ListByEvent(context.Background(), "e1")
	if err != nil || len(reviews) != 1 || reviews[0].Rating != 5 {
		t.Fatalf("ListByEvent = %v, %v", reviews, err)
	}
}
