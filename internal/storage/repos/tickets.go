package repos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garage44/codebrew-sub002/internal/model"
)

type CreateTicketInput struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Status   string         `json:"status"`
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
}

type UpdateTicketInput struct {
	Title    *string         `json:"title"`
	Body     *string         `json:"body"`
	Status   *string         `json:"status"`
	Tags     *[]string       `json:"tags"`
	Metadata *map[string]any `json:"metadata"`
}

type ListTicketsFilters struct {
	Status string
	Limit  int
}

func (s *Store) CreateTicket(ctx context.Context, in CreateTicketInput) (model.Ticket, error) {
	now := nowUTC()
	t := model.Ticket{
		ID:        newID(),
		Title:     in.Title,
		Body:      in.Body,
		Status:    model.TicketStatus(in.Status),
		Tags:      in.Tags,
		Metadata:  in.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Status == "" {
		t.Status = model.TicketStatusOpen
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO tickets (id, title, body, status, tags, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Body, string(t.Status), toJSON(t.Tags), toJSON(t.Metadata),
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return model.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return t, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (model.Ticket, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, title, body, status, tags, metadata, created_at, updated_at
FROM tickets WHERE id = ?`, id)
	return scanTicket(row)
}

func (s *Store) ListTickets(ctx context.Context, f ListTicketsFilters) ([]model.Ticket, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	query := `
SELECT id, title, body, status, tags, metadata, created_at, updated_at
FROM tickets`
	args := []any{}
	if f.Status != "" {
		query += " WHERE status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []model.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *Store) UpdateTicket(ctx context.Context, id string, in UpdateTicketInput) (model.Ticket, error) {
	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return model.Ticket{}, err
	}
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Body != nil {
		t.Body = *in.Body
	}
	if in.Status != nil {
		t.Status = model.TicketStatus(*in.Status)
	}
	if in.Tags != nil {
		t.Tags = *in.Tags
	}
	if in.Metadata != nil {
		t.Metadata = *in.Metadata
	}
	t.UpdatedAt = nowUTC()
	_, err = s.DB.ExecContext(ctx, `
UPDATE tickets SET title = ?, body = ?, status = ?, tags = ?, metadata = ?, updated_at = ?
WHERE id = ?`,
		t.Title, t.Body, string(t.Status), toJSON(t.Tags), toJSON(t.Metadata),
		t.UpdatedAt.Format(timeFormat), id)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("update ticket: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM tickets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PurgeClosedTickets removes closed tickets whose last update is older than
// cutoff. Returns the number of rows removed.
func (s *Store) PurgeClosedTickets(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		"DELETE FROM tickets WHERE status = ? AND updated_at < ?",
		string(model.TicketStatusClosed), cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("purge tickets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) CreateComment(ctx context.Context, ticketID, author, body string) (model.Comment, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return model.Comment{}, err
	}
	c := model.Comment{
		ID:        newID(),
		TicketID:  ticketID,
		Author:    author,
		Body:      body,
		CreatedAt: nowUTC(),
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO comments (id, ticket_id, author, body, created_at)
VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.TicketID, c.Author, c.Body, c.CreatedAt.Format(timeFormat))
	if err != nil {
		return model.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, ticketID string) ([]model.Comment, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, ticket_id, author, body, created_at
FROM comments WHERE ticket_id = ? ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		var created string
		if err := rows.Scan(&c.ID, &c.TicketID, &c.Author, &c.Body, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = parseTS(created)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (model.Ticket, error) {
	var t model.Ticket
	var status, tags, metadata, created, updated string
	if err := row.Scan(&t.ID, &t.Title, &t.Body, &status, &tags, &metadata, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return model.Ticket{}, err
		}
		return model.Ticket{}, fmt.Errorf("scan ticket: %w", err)
	}
	t.Status = model.TicketStatus(status)
	t.Tags = fromJSON[[]string](tags)
	t.Metadata = fromJSON[map[string]any](metadata)
	t.CreatedAt = parseTS(created)
	t.UpdatedAt = parseTS(updated)
	return t, nil
}
