package pins

import (
	"context"
	"testing"
	"time"

	"github.com/blobsync/pinner/src/jobs"
	"github.com/blobsync/pinner/src/utils/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

type ManagerTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
}

func (s *ManagerTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
}

func (s *ManagerTestSuite) TearDownTest() {
	s.cancel()
}

// blockingRunner holds every job until released
type blockingRunner struct {
	started chan string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (self *blockingRunner) Run(ctx context.Context, job jobs.Job) error {
	self.started <- job.Name()
	<-self.release
	return nil
}

func (s *ManagerTestSuite) TestSameAddressIsDeduplicated() {
	runner := newBlockingRunner()
	manager := NewManager(s.config).
		WithProvider(new(fakeProvider)).
		WithHints(new(fakeHints)).
		WithRunner(runner)

	done := make(chan error, 1)
	go func() {
		done <- manager.Pin(s.ctx, "ref-1", "Qm1", 50)
	}()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		s.T().Fatal("first job never started")
	}

	// Same address, any direction
	assert.ErrorIs(s.T(), manager.Pin(s.ctx, "ref-1", "Qm1", 50), ErrInFlight)
	assert.ErrorIs(s.T(), manager.Unpin(s.ctx, "ref-1", "Qm1"), ErrInFlight)

	close(runner.release)
	assert.Nil(s.T(), <-done)

	// Address is free again once the job finished
	assert.Nil(s.T(), manager.Pin(s.ctx, "ref-1", "Qm1", 50))
}

func (s *ManagerTestSuite) TestDifferentAddressesRunIndependently() {
	runner := newBlockingRunner()
	manager := NewManager(s.config).
		WithProvider(new(fakeProvider)).
		WithHints(new(fakeHints)).
		WithRunner(runner)

	done := make(chan error, 2)
	go func() { done <- manager.Pin(s.ctx, "ref-1", "Qm1", 50) }()
	go func() { done <- manager.Pin(s.ctx, "ref-2", "Qm2", 50) }()

	for i := 0; i < 2; i++ {
		select {
		case <-runner.started:
		case <-time.After(2 * time.Second):
			s.T().Fatal("jobs did not start concurrently")
		}
	}

	close(runner.release)
	assert.Nil(s.T(), <-done)
	assert.Nil(s.T(), <-done)
}
