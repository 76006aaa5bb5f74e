package domain

import "time"

// Job is the persisted inference job record.
type Job struct {
	ID        string    `db:"job_id"`
	Status    Status    `db:"status"`
	Payload   []byte    `db:"payload"`
	Response  []byte    `db:"response"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasResponse reports whether a response has been written.
func (j *Job) HasResponse() bool {
	return j.Response != nil
}

// Changes carries the optional column updates applied together with a
// status transition. Nil fields are left untouched.
type Changes struct {
	Payload  []byte
	Response []byte
}

// ListFilter selects a page of jobs ordered by created_at ascending.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
	After  *Cursor
}

// Cursor is a keyset position in the created_at, job_id ordering.
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}
