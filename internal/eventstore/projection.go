package eventstore

import (
	"encoding/json"
	"sort"

	"github.com/texbuild/texbuild/internal/queue"
)

// ProjectJob folds one job's ordered event stream into its latest snapshot.
// Because every event payload is a full snapshot, the fold is last-event-wins.
func ProjectJob(events []Event) (queue.Job, bool) {
	var job queue.Job
	found := false
	for _, e := range events {
		var snapshot queue.Job
		if err := json.Unmarshal(e.Payload, &snapshot); err != nil {
			continue
		}
		job = snapshot
		found = true
	}
	return job, found
}

// ProjectJobs folds a mixed event stream into per-job snapshots, most
// recently touched job first.
func ProjectJobs(events []Event) []queue.Job {
	type slot struct {
		job    queue.Job
		lastID int64
	}
	byJob := make(map[string]*slot)
	for _, e := range events {
		var snapshot queue.Job
		if err := json.Unmarshal(e.Payload, &snapshot); err != nil {
			continue
		}
		s, ok := byJob[e.JobID]
		if !ok {
			s = &slot{}
			byJob[e.JobID] = s
		}
		if e.ID >= s.lastID {
			s.job = snapshot
			s.lastID = e.ID
		}
	}

	slots := make([]*slot, 0, len(byJob))
	for _, s := range byJob {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].lastID > slots[j].lastID })

	jobs := make([]queue.Job, 0, len(slots))
	for _, s := range slots {
		jobs = append(jobs, s.job)
	}
	return jobs
}
