package model

import (
	"database/sql"
)

const TableJob = "jobs"

type JobState string

const (
	JobStateCreated  JobState = "created"
	JobStateRunning  JobState = "running"
	JobStateBackoff  JobState = "backoff"
	JobStateErrored  JobState = "errored"
	JobStateFinished JobState = "finished"
)

// Job is a durable record of one pin/unpin run, owned by the job runner.
type Job struct {
	ID string `gorm:"primaryKey"`

	// Content address being acted on
	Name string `gorm:"not null; index"`

	// Informational back-reference, not an ownership relation
	AgreementReference sql.NullString `gorm:"index"`

	State JobState `gorm:"not null"`

	Tries int `gorm:"not null"`

	Start  sql.NullTime
	Finish sql.NullTime

	// "current/total", filled while the job waits in backoff
	Retry sql.NullString

	ErrorMessage sql.NullString
}

func (Job) TableName() string {
	return TableJob
}
