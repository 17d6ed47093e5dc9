package cron

import (
	"context"
	"time"
)

// Job is one sweep of the cron worker. Run reports how many rows it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

type slot struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Schedule decides which jobs a cycle runs. A job registered with a zero
// cadence runs on every cycle.
type Schedule struct {
	slots []*slot
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Every registers job to run at most once per cadence. Nil jobs are ignored
// so optional jobs can be passed straight through.
func (s *Schedule) Every(job Job, cadence time.Duration) *Schedule {
	if job != nil {
		s.slots = append(s.slots, &slot{job: job, every: cadence})
	}
	return s
}

// Due returns the jobs whose cadence has elapsed at now and stamps them as run.
func (s *Schedule) Due(now time.Time) []Job {
	var due []Job
	for _, sl := range s.slots {
		if !sl.lastRun.IsZero() && sl.every > 0 && now.Sub(sl.lastRun) < sl.every {
			continue
		}
		sl.lastRun = now
		due = append(due, sl.job)
	}
	return due
}

func (s *Schedule) Len() int { return len(s.slots) }
