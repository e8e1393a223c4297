package domain

import "time"

// Job triggers
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Job statuses. Transitions are monotonic:
// queued -> running -> success | failed. Terminal rows are never deleted.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// Job is one unit of sync work for a (user, vendor) pair.
// Attempts and MaxAttempts are recorded for audit; failed jobs stay
// terminal — there is no automatic re-enqueue.
type Job struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Vendor      string     `json:"vendor" db:"vendor"`
	Trigger     string     `json:"trigger" db:"trigger"`
	Status      string     `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	MaxAttempts int        `json:"max_attempts" db:"max_attempts"`
	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at" db:"finished_at"`
	LastError   *string    `json:"last_error" db:"last_error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the job reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusSuccess || j.Status == JobStatusFailed
}
