package repos

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garage44/codebrew-sub002/internal/config"
	"github.com/garage44/codebrew-sub002/internal/model"
	"github.com/garage44/codebrew-sub002/internal/storage"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "repos-test.db")

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func TestTicketCRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created, err := store.CreateTicket(ctx, CreateTicketInput{
		Title: "Broken search",
		Body:  "Search returns no results",
		Tags:  []string{"bug"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != model.TicketStatusOpen {
		t.Fatalf("expected default open status, got %s", created.Status)
	}

	got, err := store.GetTicket(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != created.Title || len(got.Tags) != 1 || got.Tags[0] != "bug" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	status := string(model.TicketStatusClosed)
	title := "Broken search (fixed)"
	updated, err := store.UpdateTicket(ctx, created.ID, UpdateTicketInput{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.Status != model.TicketStatusClosed {
		t.Fatalf("partial update mismatch: %+v", updated)
	}
	if updated.Body != created.Body {
		t.Fatal("untouched field changed")
	}

	list, err := store.ListTickets(ctx, ListTicketsFilters{Status: status})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list result: %+v", list)
	}

	if err := store.DeleteTicket(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteTicket(ctx, created.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows on second delete, got %v", err)
	}
	if _, err := store.GetTicket(ctx, created.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows after delete, got %v", err)
	}
}

func TestComments(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	ticket, err := store.CreateTicket(ctx, CreateTicketInput{Title: "Needs discussion"})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	if _, err := store.CreateComment(ctx, "missing", "sam", "hello"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown ticket, got %v", err)
	}

	first, err := store.CreateComment(ctx, ticket.ID, "sam", "first")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if _, err := store.CreateComment(ctx, ticket.ID, "kim", "second"); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	comments, err := store.ListComments(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != first.ID {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestPurgeClosedTickets(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	open, err := store.CreateTicket(ctx, CreateTicketInput{Title: "Still open"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	closedStatus := string(model.TicketStatusClosed)
	closed, err := store.CreateTicket(ctx, CreateTicketInput{Title: "Old and done", Status: closedStatus})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := store.PurgeClosedTickets(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged ticket, got %d", n)
	}
	if _, err := store.GetTicket(ctx, closed.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatal("closed ticket survived purge")
	}
	if _, err := store.GetTicket(ctx, open.ID); err != nil {
		t.Fatalf("open ticket was purged: %v", err)
	}
}
