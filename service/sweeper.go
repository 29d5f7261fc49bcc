package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically evicts idle client conversation states.
type Sweeper struct {
	cron  *cron.Cron
	chats *ChatService
	idle  time.Duration
}

func NewSweeper(chats *ChatService, spec string, idle time.Duration) (*Sweeper, error) {
	s := &Sweeper{cron: cron.New(), chats: chats, idle: idle}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(time.Now()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Sweeper) RunOnce(now time.Time) int {
	logger := s.chats.log
	logger.Debugf("[%s] Start scheduled task SweepIdleClients", "scheduled task")
	evicted := s.chats.Sweep(now, s.idle)
	logger.Infof("[%s] Finished scheduled task SweepIdleClients, evicted %d cost %v", "scheduled task", evicted, time.Since(now))
	return evicted
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule. The returned context is done once a running sweep
// has finished.
func (s *Sweeper) Stop() context.Context { return s.cron.Stop() }
