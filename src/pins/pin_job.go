package pins

import (
	"context"
	"errors"
	"time"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/logger"
	"github.com/blobsync/pinner/src/utils/storage"

	"github.com/sirupsen/logrus"
)

// HintSource hands out one-shot peer address hints
type HintSource interface {
	Consume(ctx context.Context, agreementReference string) (addresses []string, err error)
}

// PinJob pins one content address, checking its size against the
// agreement both before and after the transfer. The metadata size can
// undercount so the measured size after pinning is authoritative, an
// oversized pin is rolled back.
type PinJob struct {
	config *config.Config
	log    *logrus.Entry

	provider storage.Provider
	hints    HintSource

	address            string
	agreementReference string
	maxSize            uint64
}

func NewPinJob(config *config.Config, provider storage.Provider, hints HintSource, address, agreementReference string, maxSize uint64) (self *PinJob) {
	self = new(PinJob)
	self.config = config
	self.log = logger.NewSublogger("pin-job")
	self.provider = provider
	self.hints = hints
	self.address = address
	self.agreementReference = agreementReference
	self.maxSize = maxSize
	return
}

func (self *PinJob) Name() string {
	return self.address
}

func (self *PinJob) AgreementReference() string {
	return self.agreementReference
}

func (self *PinJob) Execute(ctx context.Context) (err error) {
	addresses := self.connectToHintedPeers(ctx)
	if len(addresses) > 0 {
		defer self.disconnect(addresses)
	}

	metaCtx, cancel := context.WithTimeout(ctx, self.config.Storage.MetaFetchTimeout)
	metaSize, err := self.provider.FetchMetaSize(metaCtx, self.address)
	cancel()
	if err != nil {
		return
	}

	if metaSize > self.maxSize {
		return &storage.SizeExceededError{Actual: metaSize, Expected: self.maxSize}
	}

	pinCtx, cancel := context.WithTimeout(ctx, self.pinTimeout(metaSize))
	err = self.provider.Pin(pinCtx, self.address)
	cancel()
	if err != nil {
		return
	}

	actualCtx, cancel := context.WithTimeout(ctx, self.config.Storage.MetaFetchTimeout)
	actualSize, err := self.provider.FetchActualSize(actualCtx, self.address)
	cancel()
	if err != nil {
		return
	}

	if actualSize > self.maxSize {
		self.rollback(ctx)
		return &storage.SizeExceededError{Actual: actualSize, Expected: self.maxSize}
	}

	return nil
}

// connectToHintedPeers is best effort, pinning proceeds without hints
// and with failed connections alike
func (self *PinJob) connectToHintedPeers(ctx context.Context) (addresses []string) {
	addresses, err := self.hints.Consume(ctx, self.agreementReference)
	if err != nil {
		self.log.WithError(err).WithField("reference", self.agreementReference).Warn("Failed to consume peer hint")
		return nil
	}
	if len(addresses) == 0 {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, self.config.Storage.RequestTimeout)
	defer cancel()
	err = self.provider.Connect(connectCtx, addresses)
	if err != nil {
		self.log.WithError(err).WithField("address", self.address).Warn("Failed to connect to hinted peers")
	}
	return
}

func (self *PinJob) disconnect(addresses []string) {
	// The parent context may already be cancelled at this point
	ctx, cancel := context.WithTimeout(context.Background(), self.config.Storage.RequestTimeout)
	defer cancel()
	err := self.provider.Disconnect(ctx, addresses)
	if err != nil {
		self.log.WithError(err).WithField("address", self.address).Debug("Failed to disconnect from hinted peers")
	}
}

// pinTimeout scales with the expected content size so big transfers get
// the time they need, bounded below by MinPinTimeout
func (self *PinJob) pinTimeout(size uint64) time.Duration {
	sizeMB := float64(size) / (1 << 20)
	transfer := time.Duration(sizeMB / self.config.Storage.TransferRateMBps * float64(time.Second))
	if transfer < self.config.Storage.MinPinTimeout {
		return self.config.Storage.MinPinTimeout
	}
	return transfer
}

func (self *PinJob) rollback(ctx context.Context) {
	unpinCtx, cancel := context.WithTimeout(ctx, self.config.Storage.RequestTimeout)
	defer cancel()
	err := self.provider.Unpin(unpinCtx, self.address)
	if err != nil && !errors.Is(err, storage.ErrNotPinned) {
		self.log.WithError(err).WithField("address", self.address).Error("Failed to unpin oversized content")
	}
}
