package pins

import (
	"context"
	"errors"
	"sync"

	"github.com/blobsync/pinner/src/jobs"
	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/logger"
	"github.com/blobsync/pinner/src/utils/storage"

	"github.com/sirupsen/logrus"
)

// ErrInFlight means another job is already working on the same content
// address. The caller should not treat it as a failure.
var ErrInFlight = errors.New("a job for this address is already in flight")

// JobRunner executes a job through its retry state machine
type JobRunner interface {
	Run(ctx context.Context, job jobs.Job) (err error)
}

// Manager is the single entry point for pinning and unpinning. It keeps
// at most one job in flight per content address, concurrent requests
// for the same address get ErrInFlight instead of a duplicate job.
type Manager struct {
	config *config.Config
	log    *logrus.Entry

	provider storage.Provider
	hints    HintSource
	runner   JobRunner

	mtx      sync.Mutex
	inFlight map[string]struct{}
}

func NewManager(config *config.Config) (self *Manager) {
	self = new(Manager)
	self.config = config
	self.log = logger.NewSublogger("pin-manager")
	self.inFlight = make(map[string]struct{})
	return
}

func (self *Manager) WithProvider(provider storage.Provider) *Manager {
	self.provider = provider
	return self
}

func (self *Manager) WithHints(hints HintSource) *Manager {
	self.hints = hints
	return self
}

func (self *Manager) WithRunner(runner JobRunner) *Manager {
	self.runner = runner
	return self
}

// Pin pins the address for the agreement, enforcing maxSize in bytes
func (self *Manager) Pin(ctx context.Context, agreementReference, address string, maxSize uint64) (err error) {
	err = self.acquire(address)
	if err != nil {
		return
	}
	defer self.release(address)

	job := NewPinJob(self.config, self.provider, self.hints, address, agreementReference, maxSize)
	return self.runner.Run(ctx, job)
}

// Unpin releases the address for the agreement
func (self *Manager) Unpin(ctx context.Context, agreementReference, address string) (err error) {
	err = self.acquire(address)
	if err != nil {
		return
	}
	defer self.release(address)

	job := NewUnpinJob(self.config, self.provider, address, agreementReference)
	return self.runner.Run(ctx, job)
}

func (self *Manager) acquire(address string) (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	if _, ok := self.inFlight[address]; ok {
		return ErrInFlight
	}
	self.inFlight[address] = struct{}{}
	return nil
}

func (self *Manager) release(address string) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	delete(self.inFlight, address)
}
