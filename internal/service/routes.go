package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/garage44/codebrew-sub002/internal/model"
	"github.com/garage44/codebrew-sub002/internal/realtime"
	"github.com/garage44/codebrew-sub002/internal/storage/repos"
)

func (a *App) registerRoutes() {
	r := a.Hub.Router
	r.On("GET", "/tickets", a.listTickets)
	r.On("POST", "/tickets", a.createTicket)
	r.On("GET", "/tickets/:id", a.getTicket)
	r.On("PATCH", "/tickets/:id", a.updateTicket)
	r.On("DELETE", "/tickets/:id", a.deleteTicket)
	r.On("GET", "/tickets/:id/comments", a.listComments)
	r.On("POST", "/tickets/:id/comments", a.createComment)
}

func (a *App) listTickets(ctx context.Context, req *realtime.Request) (any, error) {
	return a.Store.ListTickets(ctx, repos.ListTicketsFilters{})
}

func (a *App) createTicket(ctx context.Context, req *realtime.Request) (any, error) {
	var in repos.CreateTicketInput
	if err := decodeBody(req.Body, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, realtime.Errorf(realtime.CodeValidation, "title is required")
	}
	if in.Status != "" && !model.TicketStatus(in.Status).Valid() {
		return nil, realtime.Errorf(realtime.CodeValidation, "invalid status %q", in.Status)
	}
	ticket, err := a.Store.CreateTicket(ctx, in)
	if err != nil {
		return nil, err
	}
	a.Hub.Broadcaster.EmitEvent(TopicTickets, map[string]any{
		"type":   "ticket:created",
		"ticket": ticket,
	})
	return ticket, nil
}

func (a *App) getTicket(ctx context.Context, req *realtime.Request) (any, error) {
	ticket, err := a.Store.GetTicket(ctx, req.Params["id"])
	if err != nil {
		return nil, mapStoreErr(err, "ticket")
	}
	return ticket, nil
}

func (a *App) updateTicket(ctx context.Context, req *realtime.Request) (any, error) {
	var in repos.UpdateTicketInput
	if err := decodeBody(req.Body, &in); err != nil {
		return nil, err
	}
	if in.Status != nil && !model.TicketStatus(*in.Status).Valid() {
		return nil, realtime.Errorf(realtime.CodeValidation, "invalid status %q", *in.Status)
	}
	ticket, err := a.Store.UpdateTicket(ctx, req.Params["id"], in)
	if err != nil {
		return nil, mapStoreErr(err, "ticket")
	}
	a.Hub.Broadcaster.EmitEvent(TopicTickets, map[string]any{
		"type":   "ticket:updated",
		"ticket": ticket,
	})
	return ticket, nil
}

func (a *App) deleteTicket(ctx context.Context, req *realtime.Request) (any, error) {
	id := req.Params["id"]
	if err := a.Store.DeleteTicket(ctx, id); err != nil {
		return nil, mapStoreErr(err, "ticket")
	}
	a.Hub.Broadcaster.EmitEvent(TopicTickets, map[string]any{
		"type": "ticket:deleted",
		"id":   id,
	})
	return map[string]any{"deleted": id}, nil
}

func (a *App) listComments(ctx context.Context, req *realtime.Request) (any, error) {
	if _, err := a.Store.GetTicket(ctx, req.Params["id"]); err != nil {
		return nil, mapStoreErr(err, "ticket")
	}
	return a.Store.ListComments(ctx, req.Params["id"])
}

func (a *App) createComment(ctx context.Context, req *realtime.Request) (any, error) {
	var in struct {
		Author string `json:"author"`
		Body   string `json:"body"`
	}
	if err := decodeBody(req.Body, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, realtime.Errorf(realtime.CodeValidation, "body is required")
	}
	comment, err := a.Store.CreateComment(ctx, req.Params["id"], in.Author, in.Body)
	if err != nil {
		return nil, mapStoreErr(err, "ticket")
	}
	a.Hub.Broadcaster.EmitEvent(TopicTickets, map[string]any{
		"type":    "comment:created",
		"comment": comment,
	})
	return comment, nil
}

func decodeBody(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return realtime.Errorf(realtime.CodeValidation, "body is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return realtime.Errorf(realtime.CodeValidation, "invalid body: %v", err)
	}
	return nil
}

func mapStoreErr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return realtime.Errorf(realtime.CodeNotFound, "%s not found", entity)
	}
	return err
}
