// Package zombie classifies tasks stuck in PENDING past the staleness
// threshold, indicating a stalled human-review step.
package zombie

import (
	"time"

	"github.com/meridian-ai/acc/internal/model"
)

// Threshold is how long a task may sit in PENDING before it counts as a
// zombie.
const Threshold = 5 * time.Minute

// IsZombie reports whether a task created at createdAt is stale as of now.
// A task exactly at the threshold is not a zombie (strict inequality).
func IsZombie(createdAt, now time.Time) bool {
	return now.Sub(createdAt) > Threshold
}

// Cutoff returns the creation-time cutoff as of now: tasks created strictly
// before it are zombies. Used to push the filter into the store query.
func Cutoff(now time.Time) time.Time {
	return now.Add(-Threshold)
}

// Annotate flags each task with its zombie classification without filtering.
func Annotate(tasks []model.Task, now time.Time) []model.PendingTask {
	annotated := make([]model.PendingTask, len(tasks))
	for i, t := range tasks {
		annotated[i] = model.PendingTask{Task: t, IsZombie: IsZombie(t.CreatedAt, now)}
	}
	return annotated
}
