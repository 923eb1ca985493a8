package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"intentbot/internal/config"
	"intentbot/internal/reminder"
	logx "intentbot/pkg/logx"
)

// Digest periodically lists pending reminders in every open conversation
// that has any.
type Digest struct {
	reg *reminder.Registry
	log logx.Logger
	c   *cron.Cron
}

// NewDigest parses spec in loc. An empty spec returns (nil, nil).
func NewDigest(spec string, loc *time.Location, reg *reminder.Registry, log logx.Logger) (*Digest, error) {
	if spec == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}
	d := &Digest{reg: reg, log: log}
	d.c = cron.New(cron.WithParser(config.CronParser), cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := d.c.AddFunc(spec, d.Run); err != nil {
		return nil, fmt.Errorf("reminders.digest: %w", err)
	}
	return d, nil
}

func (d *Digest) Start() { d.c.Start() }

// Stop halts the schedule and waits for a running tick until ctx is done.
func (d *Digest) Stop(ctx context.Context) {
	select {
	case <-d.c.Stop().Done():
	case <-ctx.Done():
	}
}

// Run performs one digest tick.
func (d *Digest) Run() {
	chats := 0
	d.reg.Each(func(s *reminder.Store) {
		if s.Len() == 0 {
			return
		}
		s.ListAll(context.Background())
		chats++
	})
	d.log.Info("digest sent", logx.Int("chats", chats))
}
