package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blobsync/pinner/src/comms"
	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/logger"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/storage"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Job is one unit of retryable work against the storage backend
type Job interface {
	// Content address the job acts on
	Name() string

	// Agreement the job was triggered for
	AgreementReference() string

	Execute(ctx context.Context) (err error)
}

// Notifier publishes job lifecycle messages
type Notifier interface {
	Broadcast(ctx context.Context, code comms.Code, payload comms.Payload) (err error)
}

type nonRetryable interface {
	NonRetryable() bool
}

// Runner drives a job through its state machine, persisting every
// transition so an operator can always see where a run ended up.
// Attempts are bounded by Pinner.JobRetries, errors marked non
// retryable stop the run after the first attempt.
type Runner struct {
	config   *config.Config
	log      *logrus.Entry
	store    Store
	notifier Notifier
	monitor  *monitoring.Monitor
}

func NewRunner(config *config.Config) (self *Runner) {
	self = new(Runner)
	self.config = config
	self.log = logger.NewSublogger("job-runner")
	return
}

func (self *Runner) WithStore(store Store) *Runner {
	self.store = store
	return self
}

func (self *Runner) WithNotifier(notifier Notifier) *Runner {
	self.notifier = notifier
	return self
}

func (self *Runner) WithMonitor(monitor *monitoring.Monitor) *Runner {
	self.monitor = monitor
	return self
}

// Run executes the job until it succeeds or the retry budget is spent.
// The final error is returned to the caller on top of being persisted.
func (self *Runner) Run(ctx context.Context, job Job) (err error) {
	retries := self.config.Pinner.JobRetries
	if retries < 1 {
		retries = 1
	}

	row := &model.Job{
		ID:                 xid.New().String(),
		Name:               job.Name(),
		AgreementReference: toNullString(job.AgreementReference()),
		State:              model.JobStateCreated,
	}
	err = self.store.SaveJob(ctx, row)
	if err != nil {
		return
	}

	self.monitor.GetReport().Jobs.State.Started.Inc()

	for attempt := 1; attempt <= retries; attempt++ {
		row.State = model.JobStateRunning
		row.Tries = attempt
		if attempt == 1 {
			row.Start = sql.NullTime{Time: time.Now(), Valid: true}
		}
		err = self.store.SaveJob(ctx, row)
		if err != nil {
			return
		}

		self.broadcast(ctx, comms.CodeJobStarted, job, comms.Payload{"job": row.Name})

		err = job.Execute(ctx)
		if err == nil {
			row.State = model.JobStateFinished
			row.Finish = sql.NullTime{Time: time.Now(), Valid: true}
			row.Retry = sql.NullString{}
			saveErr := self.store.SaveJob(ctx, row)
			if saveErr != nil {
				return saveErr
			}

			self.monitor.GetReport().Jobs.State.Succeeded.Inc()
			self.broadcast(ctx, comms.CodeJobSucceeded, job, comms.Payload{"job": row.Name})
			return nil
		}

		self.log.WithError(err).
			WithField("job", row.Name).
			WithField("attempt", fmt.Sprintf("%d/%d", attempt, retries)).
			Warn("Job attempt failed")

		if isNonRetryable(err) || attempt == retries {
			break
		}

		row.State = model.JobStateBackoff
		row.Retry = sql.NullString{String: fmt.Sprintf("%d/%d", attempt, retries), Valid: true}
		row.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		saveErr := self.store.SaveJob(ctx, row)
		if saveErr != nil {
			return saveErr
		}

		self.monitor.GetReport().Jobs.State.Retries.Inc()
		self.broadcast(ctx, comms.CodeJobRetrying, job, comms.Payload{
			"job":   row.Name,
			"retry": row.Retry.String,
			"error": err.Error(),
		})

		waitErr := self.wait(ctx, attempt)
		if waitErr != nil {
			err = waitErr
			break
		}
	}

	row.State = model.JobStateErrored
	row.Finish = sql.NullTime{Time: time.Now(), Valid: true}
	row.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	saveErr := self.store.SaveJob(ctx, row)
	if saveErr != nil {
		self.log.WithError(saveErr).WithField("job", row.Name).Error("Failed to persist errored job")
	}

	payload := comms.Payload{"job": row.Name, "error": err.Error()}
	var sizeExceeded *storage.SizeExceededError
	if errors.As(err, &sizeExceeded) {
		self.monitor.GetReport().Jobs.Errors.SizeExceeded.Inc()
		payload["actualSize"] = sizeExceeded.Actual
		payload["expectedSize"] = sizeExceeded.Expected
		self.broadcast(ctx, comms.CodeSizeExceeded, job, payload)
	} else {
		self.monitor.GetReport().Jobs.Errors.Failed.Inc()
		self.broadcast(ctx, comms.CodeJobErrored, job, payload)
	}

	return err
}

// wait sleeps between attempts, doubling the delay per attempt when
// exponential backoff is enabled
func (self *Runner) wait(ctx context.Context, attempt int) (err error) {
	delay := self.config.Pinner.JobBackoff
	if delay <= 0 {
		return nil
	}
	if self.config.Pinner.JobBackoffExponential {
		delay = delay << (attempt - 1)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (self *Runner) broadcast(ctx context.Context, code comms.Code, job Job, payload comms.Payload) {
	payload[comms.KeyAgreementReference] = job.AgreementReference()
	err := self.notifier.Broadcast(ctx, code, payload)
	if err != nil {
		self.log.WithError(err).WithField("code", code).Error("Failed to broadcast job update")
	}
}

func isNonRetryable(err error) bool {
	var marked nonRetryable
	return errors.As(err, &marked) && marked.NonRetryable()
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
