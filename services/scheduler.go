// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartStatsScheduler periodically rebuilds the denormalized player stats so
// they stay honest even if a post-completion rebuild was missed.
func (s *StatsService) StartStatsScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if err := s.RebuildAll(); err != nil {
				log.Printf("[Scheduler] Stats rebuild failed: %v", err)
				return
			}
			log.Printf("[Scheduler] Player stats rebuilt")
		}),
	)
}
