package comms

import (
	"context"
	"encoding"
	"encoding/json"
	"sort"
	"testing"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestBroadcasterTestSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterTestSuite))
}

type BroadcasterTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config

	store       *fakeLog
	transport   *fakeTransport
	monitor     *monitoring.Monitor
	broadcaster *Broadcaster
}

func (s *BroadcasterTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
	s.store = new(fakeLog)
	s.transport = newFakeTransport()
	s.monitor = monitoring.NewMonitor()
	s.broadcaster = NewBroadcaster(s.config).
		WithLog(s.store).
		WithTransport(s.transport).
		WithMonitor(s.monitor)
}

func (s *BroadcasterTestSuite) TearDownTest() {
	s.cancel()
}

type fakeLog struct {
	appended []*model.Notification
}

func (self *fakeLog) Append(ctx context.Context, notification *model.Notification) error {
	self.appended = append(self.appended, notification)
	return nil
}

// EvictBeyond keeps the newest rows per reference, ordered by creation
// time with the id as the tie breaker, same as the persisted log
func (self *fakeLog) EvictBeyond(ctx context.Context, agreementReference string, keep int) (int64, error) {
	var rows []*model.Notification
	for _, row := range self.appended {
		if row.AgreementReference == agreementReference {
			rows = append(rows, row)
		}
	}
	if len(rows) <= keep {
		return 0, nil
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})

	doomed := make(map[string]bool, len(rows)-keep)
	for _, row := range rows[:len(rows)-keep] {
		doomed[row.ID] = true
	}

	var kept []*model.Notification
	for _, row := range self.appended {
		if !doomed[row.ID] {
			kept = append(kept, row)
		}
	}
	self.appended = kept
	return int64(len(doomed)), nil
}

func (self *fakeLog) Latest(ctx context.Context, agreementReference string, code Code, limit int) ([]*model.Notification, error) {
	var out []*model.Notification
	for i := len(self.appended) - 1; i >= 0 && len(out) < limit; i-- {
		row := self.appended[i]
		if row.AgreementReference != agreementReference {
			continue
		}
		if code != "" && row.Code != string(code) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

type fakeTransport struct {
	published []encoding.BinaryMarshaler
	direct    map[string][]encoding.BinaryMarshaler
	messages  chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		direct:   make(map[string][]encoding.BinaryMarshaler),
		messages: make(chan []byte, 16),
	}
}

func (self *fakeTransport) Publish(ctx context.Context, payload encoding.BinaryMarshaler) error {
	self.published = append(self.published, payload)
	return nil
}

func (self *fakeTransport) SendDirect(ctx context.Context, peerAddress string, payload encoding.BinaryMarshaler) error {
	self.direct[peerAddress] = append(self.direct[peerAddress], payload)
	return nil
}

func (self *fakeTransport) Messages() <-chan []byte {
	return self.messages
}

func (s *BroadcasterTestSuite) TestRejectsPayloadWithoutReference() {
	err := s.broadcaster.Broadcast(s.ctx, CodeJobStarted, Payload{"job": "Qm1"})

	assert.ErrorIs(s.T(), err, ErrMissingAgreementReference)
	assert.Empty(s.T(), s.store.appended)
	assert.Empty(s.T(), s.transport.published)
}

func (s *BroadcasterTestSuite) TestPersistsBeforePublishing() {
	err := s.broadcaster.Broadcast(s.ctx, CodeAgreementNew, Payload{
		KeyAgreementReference: "ref-1",
		"dataReference":       "Qm1",
	})
	assert.Nil(s.T(), err)

	assert.Len(s.T(), s.store.appended, 1)
	stored := s.store.appended[0]
	assert.Equal(s.T(), string(CodeAgreementNew), stored.Code)
	assert.Equal(s.T(), "ref-1", stored.AgreementReference)
	assert.Equal(s.T(), s.config.Comms.Version, stored.Version)
	assert.NotEmpty(s.T(), stored.ID)

	assert.Len(s.T(), s.transport.published, 1)
	envelope := s.transport.published[0].(*Envelope)
	assert.Equal(s.T(), CodeAgreementNew, envelope.Code)
	assert.Equal(s.T(), "ref-1", envelope.Payload.AgreementReference())

	assert.EqualValues(s.T(), 1, s.monitor.GetReport().Comms.State.NotificationsPublished.Load())
}

func (s *BroadcasterTestSuite) TestRetentionKeepsNewestRows() {
	s.config.Comms.RetentionCount = 3

	for i := 0; i < 5; i++ {
		err := s.broadcaster.Broadcast(s.ctx, CodeJobSucceeded, Payload{
			KeyAgreementReference: "ref-1",
			"seq":                 i,
		})
		assert.Nil(s.T(), err)
	}

	// Exactly the 3 most recent survive, oldest evicted first
	assert.Len(s.T(), s.store.appended, 3)
	var seqs []int
	for _, row := range s.store.appended {
		var payload Payload
		assert.Nil(s.T(), json.Unmarshal(row.Payload.Bytes, &payload))
		seqs = append(seqs, int(payload["seq"].(float64)))
	}
	assert.ElementsMatch(s.T(), []int{2, 3, 4}, seqs)

	assert.EqualValues(s.T(), 2, s.monitor.GetReport().Comms.State.NotificationsEvicted.Load())

	// Rows of other references are untouched
	err := s.broadcaster.Broadcast(s.ctx, CodeJobSucceeded, Payload{
		KeyAgreementReference: "ref-2",
	})
	assert.Nil(s.T(), err)
	assert.Len(s.T(), s.store.appended, 4)
}
