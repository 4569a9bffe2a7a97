package gc

import (
	"context"
	"testing"
	"time"

	"github.com/blobsync/pinner/src/comms"
	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestCollectorTestSuite(t *testing.T) {
	suite.Run(t, new(CollectorTestSuite))
}

type CollectorTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	agreements *fakeAgreements
	unpinner   *fakeUnpinner
	notifier   *fakeNotifier
	sweeper    *fakeSweeper
	monitor    *monitoring.Monitor
	collector  *Collector
}

func (s *CollectorTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
	s.agreements = new(fakeAgreements)
	s.unpinner = new(fakeUnpinner)
	s.notifier = new(fakeNotifier)
	s.sweeper = new(fakeSweeper)
	s.monitor = monitoring.NewMonitor()
	s.collector = NewCollector(s.config).
		WithAgreements(s.agreements).
		WithUnpinner(s.unpinner).
		WithNotifier(s.notifier).
		WithHints(s.sweeper).
		WithMonitor(s.monitor)
}

func (s *CollectorTestSuite) TearDownTest() {
	s.cancel()
}

type fakeAgreements struct {
	rows []*model.Agreement
}

func (self *fakeAgreements) FindActiveUnmarked(ctx context.Context) (out []*model.Agreement, err error) {
	for _, row := range self.rows {
		if row.IsActive && !row.ExpiredAtBlockNumber.Valid {
			out = append(out, row)
		}
	}
	return
}

func (self *fakeAgreements) FindCondemnedBefore(ctx context.Context, height int64) (out []*model.Agreement, err error) {
	for _, row := range self.rows {
		if row.IsActive && row.ExpiredAtBlockNumber.Valid && row.ExpiredAtBlockNumber.Int64 <= height {
			out = append(out, row)
		}
	}
	return
}

func (self *fakeAgreements) Save(ctx context.Context, agreement *model.Agreement) error {
	return nil
}

type fakeUnpinner struct {
	unpins []string
	err    error
}

func (self *fakeUnpinner) Unpin(ctx context.Context, agreementReference, address string) error {
	if self.err != nil {
		return self.err
	}
	self.unpins = append(self.unpins, address)
	return nil
}

type fakeNotifier struct {
	codes []comms.Code
}

func (self *fakeNotifier) Broadcast(ctx context.Context, code comms.Code, payload comms.Payload) error {
	self.codes = append(self.codes, code)
	return nil
}

type fakeSweeper struct {
	removed int64
	cutoffs []time.Time
}

func (self *fakeSweeper) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	self.cutoffs = append(self.cutoffs, cutoff)
	return self.removed, nil
}

// underfunded can't pay for a single period
func (s *CollectorTestSuite) underfunded(reference string) *model.Agreement {
	return &model.Agreement{
		AgreementReference: reference,
		DataReference:      "Qm-" + reference,
		Size:               decimal.NewFromInt(2),
		IsActive:           true,
		BillingPeriod:      decimal.NewFromInt(3600),
		BillingPrice:       decimal.NewFromInt(1),
		AvailableFunds:     decimal.NewFromInt(1),
		LastPayout:         time.Now(),
	}
}

func (s *CollectorTestSuite) TestUnderfundedGetsCondemnedNotCollected() {
	agreement := s.underfunded("ref-1")
	s.agreements.rows = []*model.Agreement{agreement}

	s.collector.OnBlock(s.ctx, 100)

	assert.True(s.T(), agreement.ExpiredAtBlockNumber.Valid)
	assert.EqualValues(s.T(), 100, agreement.ExpiredAtBlockNumber.Int64)
	assert.True(s.T(), agreement.IsActive)
	assert.Empty(s.T(), s.unpinner.unpins)
	assert.EqualValues(s.T(), 1, s.monitor.GetReport().Gc.State.AgreementsMarked.Load())
}

func (s *CollectorTestSuite) TestNotCollectedInsideConfirmationWindow() {
	agreement := s.underfunded("ref-1")
	s.agreements.rows = []*model.Agreement{agreement}

	s.collector.OnBlock(s.ctx, 100)
	// Confirmations default to 5, height 104 is still inside the window
	s.collector.OnBlock(s.ctx, 104)

	assert.True(s.T(), agreement.IsActive)
	assert.Empty(s.T(), s.unpinner.unpins)
}

func (s *CollectorTestSuite) TestCollectedAfterConfirmationWindow() {
	agreement := s.underfunded("ref-1")
	s.agreements.rows = []*model.Agreement{agreement}

	s.collector.OnBlock(s.ctx, 100)
	s.collector.OnBlock(s.ctx, 105)

	assert.False(s.T(), agreement.IsActive)
	assert.Equal(s.T(), []string{"Qm-ref-1"}, s.unpinner.unpins)
	assert.Contains(s.T(), s.notifier.codes, comms.CodeAgreementExpired)
	assert.EqualValues(s.T(), 1, s.monitor.GetReport().Gc.State.AgreementsExpired.Load())
}

func (s *CollectorTestSuite) TestDepositDuringWindowReprieves() {
	agreement := s.underfunded("ref-1")
	s.agreements.rows = []*model.Agreement{agreement}

	s.collector.OnBlock(s.ctx, 100)
	assert.True(s.T(), agreement.ExpiredAtBlockNumber.Valid)

	// Deposit arrives before the window closes
	agreement.AvailableFunds = decimal.NewFromInt(1000)

	s.collector.OnBlock(s.ctx, 105)

	assert.False(s.T(), agreement.ExpiredAtBlockNumber.Valid)
	assert.True(s.T(), agreement.IsActive)
	assert.Empty(s.T(), s.unpinner.unpins)
	assert.EqualValues(s.T(), 1, s.monitor.GetReport().Gc.State.AgreementsReprieved.Load())
}

func (s *CollectorTestSuite) TestFundedAgreementLeftAlone() {
	agreement := s.underfunded("ref-1")
	agreement.AvailableFunds = decimal.NewFromInt(1000)
	s.agreements.rows = []*model.Agreement{agreement}

	s.collector.OnBlock(s.ctx, 100)

	assert.False(s.T(), agreement.ExpiredAtBlockNumber.Valid)
	assert.True(s.T(), agreement.IsActive)
}

func (s *CollectorTestSuite) TestHintSweepCountsRemoved() {
	s.sweeper.removed = 3

	err := s.collector.sweepHints()
	assert.Nil(s.T(), err)
	assert.Len(s.T(), s.sweeper.cutoffs, 1)
	assert.EqualValues(s.T(), 3, s.monitor.GetReport().Gc.State.HintsSwept.Load())
}
