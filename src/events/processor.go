package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blobsync/pinner/src/comms"
	"github.com/blobsync/pinner/src/pins"
	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/storage"
	"github.com/blobsync/pinner/src/utils/task"

	"github.com/shopspring/decimal"
)

// AgreementStore is the slice of the agreement store the processor needs
type AgreementStore interface {
	Upsert(ctx context.Context, agreement *model.Agreement) (out *model.Agreement, err error)
	FindByReference(ctx context.Context, reference string) (out *model.Agreement, err error)
	Save(ctx context.Context, agreement *model.Agreement) (err error)
}

// PinManager pins and unpins content on behalf of agreements
type PinManager interface {
	Pin(ctx context.Context, agreementReference, address string, maxSize uint64) (err error)
	Unpin(ctx context.Context, agreementReference, address string) (err error)
}

// Notifier publishes agreement lifecycle messages
type Notifier interface {
	Broadcast(ctx context.Context, code comms.Code, payload comms.Payload) (err error)
}

// HintSink stores announced peer addresses
type HintSink interface {
	Put(ctx context.Context, agreementReference string, addresses []string) (err error)
}

// BlockHandler is told about every new block tick, in order
type BlockHandler interface {
	OnBlock(ctx context.Context, height int64)
}

// Processor consumes the event feed one event at a time. Events that
// name another offer or an agreement this instance doesn't track are
// dropped. A handler error never stops the loop, it's logged and
// broadcast so operators and consumers see it.
type Processor struct {
	*task.Task

	input <-chan *Event

	agreements AgreementStore
	pinManager PinManager
	notifier   Notifier
	hints      HintSink
	blocks     BlockHandler
	state      StateStore
	monitor    *monitoring.Monitor
}

func NewProcessor(config *config.Config) (self *Processor) {
	self = new(Processor)

	self.Task = task.NewTask(config, "processor").
		WithSubtaskFunc(self.run).
		WithWorkerPool(config.Pinner.MaxWorkers)

	return
}

func (self *Processor) WithInput(input <-chan *Event) *Processor {
	self.input = input
	return self
}

func (self *Processor) WithAgreements(agreements AgreementStore) *Processor {
	self.agreements = agreements
	return self
}

func (self *Processor) WithPinManager(pinManager PinManager) *Processor {
	self.pinManager = pinManager
	return self
}

func (self *Processor) WithNotifier(notifier Notifier) *Processor {
	self.notifier = notifier
	return self
}

func (self *Processor) WithHints(hints HintSink) *Processor {
	self.hints = hints
	return self
}

func (self *Processor) WithBlocks(blocks BlockHandler) *Processor {
	self.blocks = blocks
	return self
}

func (self *Processor) WithState(state StateStore) *Processor {
	self.state = state
	return self
}

func (self *Processor) WithMonitor(monitor *monitoring.Monitor) *Processor {
	self.monitor = monitor
	return self
}

func (self *Processor) run() (err error) {
	for {
		select {
		case <-self.StopChannel:
			return nil
		case event, ok := <-self.input:
			if !ok {
				return nil
			}
			self.Process(event)
		}
	}
}

// Process applies one event. Exported so a caller owning its own loop
// can drive the processor directly.
func (self *Processor) Process(event *Event) {
	if !self.concernsUs(event) {
		self.Log.WithField("kind", event.Kind).
			WithField("offer", event.Offer).
			Debug("Dropping event for another offer")
		self.monitor.GetReport().Processor.State.EventsFiltered.Inc()
		return
	}

	err := self.handle(event)
	if err != nil {
		self.Log.WithError(err).
			WithField("kind", event.Kind).
			WithField("reference", event.AgreementReference).
			Error("Failed to process event")
		self.monitor.GetReport().Processor.Errors.Processing.Inc()
		self.broadcastError(event, err)
	}

	self.monitor.GetReport().Processor.State.EventsProcessed.Inc()
}

// concernsUs decides whether the event is addressed to this provider.
// Events naming an offer must name ours, agreement-scoped events on a
// shared feed pass when we track the agreement locally.
func (self *Processor) concernsUs(event *Event) bool {
	if event.Offer != "" {
		return event.Offer == self.Config.Pinner.OfferAddress
	}

	switch event.Kind {
	case KindNewBlock, KindTotalCapacitySet:
		return true
	}

	if event.AgreementReference == "" {
		return false
	}
	_, err := self.agreements.FindByReference(self.Ctx, event.AgreementReference)
	return err == nil
}

func (self *Processor) handle(event *Event) (err error) {
	switch event.Kind {
	case KindNewAgreement:
		return self.onNewAgreement(event)
	case KindAgreementStopped:
		return self.onAgreementStopped(event)
	case KindFundsDeposited, KindFundsWithdrawn:
		return self.onFundsChanged(event)
	case KindFundsPayout:
		return self.onFundsPayout(event)
	case KindTotalCapacitySet:
		return self.onTotalCapacitySet(event)
	case KindMessageEmitted:
		return self.onMessageEmitted(event)
	case KindNewBlock:
		return self.onNewBlock(event)
	default:
		return fmt.Errorf("unknown event kind: %s", event.Kind)
	}
}

func (self *Processor) onNewAgreement(event *Event) (err error) {
	lastPayout := event.PayoutAt
	if lastPayout.IsZero() {
		lastPayout = time.Now()
	}

	agreement, err := self.agreements.Upsert(self.Ctx, &model.Agreement{
		AgreementReference: event.AgreementReference,
		DataReference:      event.DataReference,
		Consumer:           event.Consumer,
		Size:               event.Size,
		IsActive:           true,
		BillingPeriod:      event.BillingPeriod,
		BillingPrice:       event.BillingPrice,
		TokenAddress:       event.TokenAddress,
		AvailableFunds:     event.AvailableFunds,
		LastPayout:         lastPayout,
	})
	if err != nil {
		self.monitor.GetReport().Processor.Errors.DbError.Inc()
		return
	}

	err = self.notifier.Broadcast(self.Ctx, comms.CodeAgreementNew, comms.Payload{
		comms.KeyAgreementReference: agreement.AgreementReference,
		"dataReference":             agreement.DataReference,
	})
	if err != nil {
		return
	}

	maxSize := decimalToBytes(agreement.Size)
	reference := agreement.AgreementReference
	address := agreement.DataReference
	self.SubmitToWorker(func() {
		self.pin(reference, address, maxSize)
	})
	return nil
}

// pin runs inside the worker pool. Failures past the retry budget are
// already persisted and broadcast by the job runner, duplicates and
// oversized content are expected outcomes here.
func (self *Processor) pin(reference, address string, maxSize uint64) {
	err := self.pinManager.Pin(self.Ctx, reference, address, maxSize)
	switch {
	case err == nil:
		return
	case errors.Is(err, pins.ErrInFlight):
		self.Log.WithField("address", address).Debug("Pin already in flight")
	case isSizeExceeded(err):
		self.Log.WithField("address", address).WithField("reference", reference).
			Warn("Content exceeds the agreed size, not pinned")
	default:
		self.Log.WithError(err).WithField("address", address).Error("Pin failed")
	}
}

func (self *Processor) onAgreementStopped(event *Event) (err error) {
	agreement, err := self.agreements.FindByReference(self.Ctx, event.AgreementReference)
	if err != nil {
		return
	}

	agreement.IsActive = false
	err = self.agreements.Save(self.Ctx, agreement)
	if err != nil {
		self.monitor.GetReport().Processor.Errors.DbError.Inc()
		return
	}

	err = self.notifier.Broadcast(self.Ctx, comms.CodeAgreementStopped, comms.Payload{
		comms.KeyAgreementReference: agreement.AgreementReference,
	})
	if err != nil {
		return
	}

	reference := agreement.AgreementReference
	address := agreement.DataReference
	self.SubmitToWorker(func() {
		self.unpin(reference, address)
	})
	return nil
}

// unpin runs inside the worker pool. The address may still be held by
// the pin job the agreement triggered, in that case the release must
// wait for it instead of getting dropped, the consumer stopped paying.
func (self *Processor) unpin(reference, address string) {
	for {
		err := self.pinManager.Unpin(self.Ctx, reference, address)
		if !errors.Is(err, pins.ErrInFlight) {
			if err != nil {
				self.Log.WithError(err).WithField("address", address).Error("Unpin failed")
			}
			return
		}

		select {
		case <-self.Ctx.Done():
			return
		case <-time.After(self.Config.Pinner.InFlightRetryInterval):
		}
	}
}

// onFundsChanged applies the post-state carried by deposit and withdraw
// events, it never does delta arithmetic locally
func (self *Processor) onFundsChanged(event *Event) (err error) {
	agreement, err := self.agreements.FindByReference(self.Ctx, event.AgreementReference)
	if err != nil {
		return
	}

	agreement.AvailableFunds = event.AvailableFunds
	err = self.agreements.Save(self.Ctx, agreement)
	if err != nil {
		self.monitor.GetReport().Processor.Errors.DbError.Inc()
	}
	return
}

func (self *Processor) onFundsPayout(event *Event) (err error) {
	agreement, err := self.agreements.FindByReference(self.Ctx, event.AgreementReference)
	if err != nil {
		return
	}

	agreement.LastPayout = event.PayoutAt
	agreement.AvailableFunds = event.AvailableFunds
	err = self.agreements.Save(self.Ctx, agreement)
	if err != nil {
		self.monitor.GetReport().Processor.Errors.DbError.Inc()
	}
	return
}

func (self *Processor) onTotalCapacitySet(event *Event) (err error) {
	self.monitor.GetReport().Processor.State.TotalCapacityBytes.Store(decimalToBytes(event.TotalCapacity))
	return nil
}

func (self *Processor) onMessageEmitted(event *Event) (err error) {
	if len(event.Multiaddrs) == 0 {
		return errors.New("peer announcement without addresses")
	}
	return self.hints.Put(self.Ctx, event.AgreementReference, event.Multiaddrs)
}

func (self *Processor) onNewBlock(event *Event) (err error) {
	err = self.state.SaveLastSeenHeight(self.Ctx, event.BlockNumber)
	if err != nil {
		self.monitor.GetReport().Processor.Errors.DbError.Inc()
		return
	}

	self.monitor.GetReport().Processor.State.LastBlockHeight.Store(event.BlockNumber)
	self.blocks.OnBlock(self.Ctx, event.BlockNumber)
	return nil
}

func (self *Processor) broadcastError(event *Event, processingErr error) {
	if event.AgreementReference == "" {
		return
	}
	err := self.notifier.Broadcast(self.Ctx, comms.CodeGeneralError, comms.Payload{
		comms.KeyAgreementReference: event.AgreementReference,
		"kind":                      string(event.Kind),
		"error":                     processingErr.Error(),
	})
	if err != nil {
		self.Log.WithError(err).Error("Failed to broadcast processing error")
	}
}

func isSizeExceeded(err error) bool {
	var sizeExceeded *storage.SizeExceededError
	return errors.As(err, &sizeExceeded)
}

func decimalToBytes(d decimal.Decimal) uint64 {
	if d.Sign() <= 0 {
		return 0
	}
	return d.BigInt().Uint64()
}
