package pins

import (
	"context"
	"errors"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/logger"
	"github.com/blobsync/pinner/src/utils/storage"

	"github.com/sirupsen/logrus"
)

// UnpinJob releases one content address. Unpinning something that isn't
// pinned counts as success, the goal state is already reached.
type UnpinJob struct {
	config *config.Config
	log    *logrus.Entry

	provider storage.Provider

	address            string
	agreementReference string
}

func NewUnpinJob(config *config.Config, provider storage.Provider, address, agreementReference string) (self *UnpinJob) {
	self = new(UnpinJob)
	self.config = config
	self.log = logger.NewSublogger("unpin-job")
	self.provider = provider
	self.address = address
	self.agreementReference = agreementReference
	return
}

func (self *UnpinJob) Name() string {
	return self.address
}

func (self *UnpinJob) AgreementReference() string {
	return self.agreementReference
}

func (self *UnpinJob) Execute(ctx context.Context) (err error) {
	unpinCtx, cancel := context.WithTimeout(ctx, self.config.Storage.RequestTimeout)
	defer cancel()

	err = self.provider.Unpin(unpinCtx, self.address)
	if errors.Is(err, storage.ErrNotPinned) {
		self.log.WithField("address", self.address).Debug("Address was not pinned")
		return nil
	}
	return
}
