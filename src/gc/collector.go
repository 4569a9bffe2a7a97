package gc

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blobsync/pinner/src/comms"
	"github.com/blobsync/pinner/src/pins"
	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/task"
)

// AgreementSource is the slice of the agreement store the collector needs
type AgreementSource interface {
	FindActiveUnmarked(ctx context.Context) (out []*model.Agreement, err error)
	FindCondemnedBefore(ctx context.Context, height int64) (out []*model.Agreement, err error)
	Save(ctx context.Context, agreement *model.Agreement) (err error)
}

// Unpinner releases pinned content
type Unpinner interface {
	Unpin(ctx context.Context, agreementReference, address string) (err error)
}

// Notifier publishes expiry messages
type Notifier interface {
	Broadcast(ctx context.Context, code comms.Code, payload comms.Payload) (err error)
}

// HintSweeper removes peer address hints past their time to live
type HintSweeper interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (removed int64, err error)
}

// Collector expires agreements that ran out of funds. Expiry is two
// phased: an underfunded agreement is first condemned at the current
// block height, then collected only once that height is a configured
// number of blocks in the past. A deposit arriving in between lifts the
// condemnation, so a reorged or not-yet-final funds reading never costs
// the consumer their pin.
type Collector struct {
	*task.Task

	agreements AgreementSource
	unpinner   Unpinner
	notifier   Notifier
	hints      HintSweeper
	monitor    *monitoring.Monitor
}

func NewCollector(config *config.Config) (self *Collector) {
	self = new(Collector)

	self.Task = task.NewTask(config, "gc").
		WithPeriodicSubtaskFunc(config.Gc.HintSweepInterval, self.sweepHints)

	return
}

func (self *Collector) WithAgreements(agreements AgreementSource) *Collector {
	self.agreements = agreements
	return self
}

func (self *Collector) WithUnpinner(unpinner Unpinner) *Collector {
	self.unpinner = unpinner
	return self
}

func (self *Collector) WithNotifier(notifier Notifier) *Collector {
	self.notifier = notifier
	return self
}

func (self *Collector) WithHints(hints HintSweeper) *Collector {
	self.hints = hints
	return self
}

func (self *Collector) WithMonitor(monitor *monitoring.Monitor) *Collector {
	self.monitor = monitor
	return self
}

// OnBlock runs both phases for the given block height. Called by the
// event processor on every new block, in event order.
func (self *Collector) OnBlock(ctx context.Context, height int64) {
	self.condemn(ctx, height)
	self.collect(ctx, height-self.Config.Gc.Confirmations)
}

// condemn marks active agreements that can't pay for their next period
func (self *Collector) condemn(ctx context.Context, height int64) {
	candidates, err := self.agreements.FindActiveUnmarked(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to load agreements for condemnation")
		self.monitor.GetReport().Gc.Errors.DbError.Inc()
		return
	}

	now := time.Now()
	for _, agreement := range candidates {
		if agreement.HasSufficientFunds(now) {
			continue
		}

		agreement.ExpiredAtBlockNumber = sql.NullInt64{Int64: height, Valid: true}
		err = self.agreements.Save(ctx, agreement)
		if err != nil {
			self.Log.WithError(err).
				WithField("reference", agreement.AgreementReference).
				Error("Failed to condemn agreement")
			self.monitor.GetReport().Gc.Errors.DbError.Inc()
			continue
		}

		self.Log.WithField("reference", agreement.AgreementReference).
			WithField("height", height).
			Info("Agreement condemned, out of funds")
		self.monitor.GetReport().Gc.State.AgreementsMarked.Inc()
	}
}

// collect finalizes agreements condemned at or before the cutoff height.
// Refunded agreements are reprieved instead.
func (self *Collector) collect(ctx context.Context, cutoff int64) {
	condemned, err := self.agreements.FindCondemnedBefore(ctx, cutoff)
	if err != nil {
		self.Log.WithError(err).Error("Failed to load condemned agreements")
		self.monitor.GetReport().Gc.Errors.DbError.Inc()
		return
	}

	now := time.Now()
	for _, agreement := range condemned {
		if agreement.HasSufficientFunds(now) {
			self.reprieve(ctx, agreement)
			continue
		}
		self.expire(ctx, agreement)
	}
}

func (self *Collector) reprieve(ctx context.Context, agreement *model.Agreement) {
	agreement.ExpiredAtBlockNumber = sql.NullInt64{}
	err := self.agreements.Save(ctx, agreement)
	if err != nil {
		self.Log.WithError(err).
			WithField("reference", agreement.AgreementReference).
			Error("Failed to reprieve agreement")
		self.monitor.GetReport().Gc.Errors.DbError.Inc()
		return
	}

	self.Log.WithField("reference", agreement.AgreementReference).
		Info("Agreement reprieved, funds arrived during the confirmation window")
	self.monitor.GetReport().Gc.State.AgreementsReprieved.Inc()
}

func (self *Collector) expire(ctx context.Context, agreement *model.Agreement) {
	err := self.unpinner.Unpin(ctx, agreement.AgreementReference, agreement.DataReference)
	if errors.Is(err, pins.ErrInFlight) {
		// Another job holds the address, collect on the next block
		return
	}
	if err != nil {
		self.Log.WithError(err).
			WithField("reference", agreement.AgreementReference).
			Error("Failed to unpin expired agreement")
		self.monitor.GetReport().Gc.Errors.Unpin.Inc()
		return
	}

	agreement.IsActive = false
	err = self.agreements.Save(ctx, agreement)
	if err != nil {
		self.Log.WithError(err).
			WithField("reference", agreement.AgreementReference).
			Error("Failed to deactivate expired agreement")
		self.monitor.GetReport().Gc.Errors.DbError.Inc()
		return
	}

	self.Log.WithField("reference", agreement.AgreementReference).Info("Agreement expired")
	self.monitor.GetReport().Gc.State.AgreementsExpired.Inc()

	err = self.notifier.Broadcast(ctx, comms.CodeAgreementExpired, comms.Payload{
		comms.KeyAgreementReference: agreement.AgreementReference,
	})
	if err != nil {
		self.Log.WithError(err).
			WithField("reference", agreement.AgreementReference).
			Error("Failed to broadcast agreement expiry")
	}
}

func (self *Collector) sweepHints() (err error) {
	cutoff := time.Now().Add(-self.Config.Gc.HintTTL)
	removed, err := self.hints.DeleteOlderThan(self.Ctx, cutoff)
	if err != nil {
		self.Log.WithError(err).Error("Failed to sweep expired peer hints")
		self.monitor.GetReport().Gc.Errors.DbError.Inc()
		return nil
	}
	if removed > 0 {
		self.Log.WithField("removed", removed).Debug("Swept expired peer hints")
		self.monitor.GetReport().Gc.State.HintsSwept.Add(uint64(removed))
	}
	return nil
}
