package pins

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestPinJobTestSuite(t *testing.T) {
	suite.Run(t, new(PinJobTestSuite))
}

type PinJobTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	provider *fakeProvider
	hints    *fakeHints
}

func (s *PinJobTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
	s.provider = new(fakeProvider)
	s.hints = new(fakeHints)
}

func (s *PinJobTestSuite) TearDownTest() {
	s.cancel()
}

type fakeProvider struct {
	metaSize   uint64
	actualSize uint64

	metaErr  error
	pinErr   error
	unpinErr error

	pins         []string
	unpins       []string
	connected    [][]string
	disconnected [][]string
}

func (self *fakeProvider) FetchMetaSize(ctx context.Context, address string) (uint64, error) {
	return self.metaSize, self.metaErr
}

func (self *fakeProvider) FetchActualSize(ctx context.Context, address string) (uint64, error) {
	return self.actualSize, nil
}

func (self *fakeProvider) Pin(ctx context.Context, address string) error {
	self.pins = append(self.pins, address)
	return self.pinErr
}

func (self *fakeProvider) Unpin(ctx context.Context, address string) error {
	self.unpins = append(self.unpins, address)
	return self.unpinErr
}

func (self *fakeProvider) Connect(ctx context.Context, addresses []string) error {
	self.connected = append(self.connected, addresses)
	return nil
}

func (self *fakeProvider) Disconnect(ctx context.Context, addresses []string) error {
	self.disconnected = append(self.disconnected, addresses)
	return nil
}

type fakeHints struct {
	addresses []string
	consumed  int
}

func (self *fakeHints) Consume(ctx context.Context, agreementReference string) ([]string, error) {
	self.consumed++
	out := self.addresses
	self.addresses = nil
	return out, nil
}

func (s *PinJobTestSuite) TestPinsWhenSizeFits() {
	s.provider.metaSize = 40
	s.provider.actualSize = 45

	job := NewPinJob(s.config, s.provider, s.hints, "Qm1", "ref-1", 50)
	err := job.Execute(s.ctx)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), []string{"Qm1"}, s.provider.pins)
	assert.Empty(s.T(), s.provider.unpins)
}

func (s *PinJobTestSuite) TestOversizedMetadataBlocksPin() {
	s.provider.metaSize = 100

	job := NewPinJob(s.config, s.provider, s.hints, "Qm1", "ref-1", 50)
	err := job.Execute(s.ctx)

	var sizeExceeded *storage.SizeExceededError
	assert.True(s.T(), errors.As(err, &sizeExceeded))
	assert.EqualValues(s.T(), 100, sizeExceeded.Actual)
	assert.EqualValues(s.T(), 50, sizeExceeded.Expected)
	assert.Empty(s.T(), s.provider.pins)
}

func (s *PinJobTestSuite) TestOversizedContentGetsUnpinned() {
	// Metadata undercounts, the real size only shows after the transfer
	s.provider.metaSize = 40
	s.provider.actualSize = 80

	job := NewPinJob(s.config, s.provider, s.hints, "Qm1", "ref-1", 50)
	err := job.Execute(s.ctx)

	var sizeExceeded *storage.SizeExceededError
	assert.True(s.T(), errors.As(err, &sizeExceeded))
	assert.EqualValues(s.T(), 80, sizeExceeded.Actual)
	assert.Equal(s.T(), []string{"Qm1"}, s.provider.pins)
	assert.Equal(s.T(), []string{"Qm1"}, s.provider.unpins)
}

func (s *PinJobTestSuite) TestRollbackToleratesWrappedNotPinned() {
	s.provider.metaSize = 40
	s.provider.actualSize = 80
	s.provider.unpinErr = fmt.Errorf("pin/rm: %w", storage.ErrNotPinned)

	job := NewPinJob(s.config, s.provider, s.hints, "Qm1", "ref-1", 50)
	err := job.Execute(s.ctx)

	// The size verdict stands, the benign rollback outcome doesn't mask it
	var sizeExceeded *storage.SizeExceededError
	assert.True(s.T(), errors.As(err, &sizeExceeded))
	assert.Equal(s.T(), []string{"Qm1"}, s.provider.unpins)
}

func (s *PinJobTestSuite) TestHintedPeersConnectedAndDisconnected() {
	s.provider.metaSize = 40
	s.provider.actualSize = 45
	s.hints.addresses = []string{"/ip4/10.0.0.1/tcp/4001"}

	job := NewPinJob(s.config, s.provider, s.hints, "Qm1", "ref-1", 50)
	err := job.Execute(s.ctx)
	assert.Nil(s.T(), err)

	assert.Equal(s.T(), 1, s.hints.consumed)
	assert.Equal(s.T(), [][]string{{"/ip4/10.0.0.1/tcp/4001"}}, s.provider.connected)
	assert.Equal(s.T(), [][]string{{"/ip4/10.0.0.1/tcp/4001"}}, s.provider.disconnected)
}

func (s *PinJobTestSuite) TestPinTimeoutScalesWithSize() {
	job := NewPinJob(s.config, s.provider, s.hints, "Qm1", "ref-1", 1<<40)

	// Small content gets the floor
	assert.Equal(s.T(), s.config.Storage.MinPinTimeout, job.pinTimeout(1<<20))

	// 1 GiB at 0.5 MB/s needs more than the floor
	expected := time.Duration(1024 / s.config.Storage.TransferRateMBps * float64(time.Second))
	assert.Equal(s.T(), expected, job.pinTimeout(1<<30))
}
