package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Sweeper is the part of a Cache the janitor drives.
type Sweeper interface {
	Namespace() string
	Cleanup() int
	PurgeDurable() (int, error)
}

// Janitor periodically purges expired entries from a set of caches, in
// memory and in their durable mirrors.
type Janitor struct {
	cron     *cron.Cron
	sweepers []Sweeper
}

// NewJanitor schedules a sweep of every sweeper. schedule is a standard
// five-field cron expression or a descriptor such as "@every 5m".
func NewJanitor(schedule string, sweepers ...Sweeper) (*Janitor, error) {
	j := &Janitor{cron: cron.New(), sweepers: sweepers}
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
	log.Printf("[cache] janitor running for %d caches", len(j.sweepers))
}

// Stop halts the schedule and returns a context that is done once any
// running sweep has finished.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

// Sweep runs one pass over all caches right away.
func (j *Janitor) Sweep() {
	for _, s := range j.sweepers {
		mem := s.Cleanup()
		dur, err := s.PurgeDurable()
		if err != nil {
			log.Printf("[cache] %s: purge durable: %v", s.Namespace(), err)
		}
		if mem > 0 || dur > 0 {
			log.Printf("[cache] %s: swept %d memory, %d durable", s.Namespace(), mem, dur)
		}
	}
}
