package service

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garage44/codebrew-sub002/internal/config"
)

// Janitor runs the recurring maintenance jobs: a periodic hub stats log line
// and the closed-ticket purge.
type Janitor struct {
	cron *cron.Cron
	app  *App
}

func NewJanitor(app *App) *Janitor {
	return &Janitor{cron: cron.New(), app: app}
}

func (j *Janitor) Register() error {
	cfg := j.app.Config
	if spec := cfg.Jobs.StatsSchedule; spec != "" {
		if _, err := j.cron.AddFunc(spec, j.logStats); err != nil {
			return err
		}
	}
	if spec := cfg.Jobs.PurgeSchedule; spec != "" {
		if _, err := j.cron.AddFunc(spec, j.purgeClosed); err != nil {
			return err
		}
	}
	return nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) logStats() {
	stats := j.app.Hub.Registry.Snapshot()
	log.Printf("hub stats: connections=%d topics=%d", stats.Connections, len(stats.Topics))
}

func (j *Janitor) purgeClosed() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cutoff := time.Now().UTC().Add(-config.ClosedTicketTTL(j.app.Config))
	n, err := j.app.Store.PurgeClosedTickets(ctx, cutoff)
	if err != nil {
		log.Printf("purge closed tickets: %v", err)
		return
	}
	if n > 0 {
		log.Printf("purged %d closed tickets", n)
	}
}
