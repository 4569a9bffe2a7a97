package comms

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"

	"github.com/jackc/pgtype"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestInboxTestSuite(t *testing.T) {
	suite.Run(t, new(InboxTestSuite))
}

type InboxTestSuite struct {
	suite.Suite
	config *config.Config

	store     *fakeLog
	hints     *fakeHintSink
	transport *fakeTransport
	monitor   *monitoring.Monitor
	inbox     *Inbox
}

func (s *InboxTestSuite) SetupTest() {
	s.config = config.Default()
	s.store = new(fakeLog)
	s.hints = new(fakeHintSink)
	s.transport = newFakeTransport()
	s.monitor = monitoring.NewMonitor()
	s.inbox = NewInbox(s.config).
		WithLog(s.store).
		WithHints(s.hints).
		WithTransport(s.transport).
		WithMonitor(s.monitor)
}

type fakeHintSink struct {
	references []string
	addresses  [][]string
}

func (self *fakeHintSink) Put(ctx context.Context, agreementReference string, addresses []string) error {
	self.references = append(self.references, agreementReference)
	self.addresses = append(self.addresses, addresses)
	return nil
}

func marshal(s *InboxTestSuite, envelope *Envelope) []byte {
	raw, err := json.Marshal(envelope)
	assert.Nil(s.T(), err)
	return raw
}

func (s *InboxTestSuite) TestMultiaddrAnnouncementStoresHint() {
	raw := marshal(s, &Envelope{
		Code: CodePeerMultiaddr,
		Payload: Payload{
			KeyAgreementReference: "ref-1",
			KeyMultiaddrs:         []string{"/ip4/10.0.0.1/tcp/4001"},
		},
	})

	s.inbox.dispatch(raw)

	assert.Equal(s.T(), []string{"ref-1"}, s.hints.references)
	assert.Equal(s.T(), [][]string{{"/ip4/10.0.0.1/tcp/4001"}}, s.hints.addresses)
}

func (s *InboxTestSuite) TestResendReplaysInOriginalOrder() {
	for i, code := range []Code{CodeAgreementNew, CodeJobStarted, CodeJobSucceeded} {
		raw, err := json.Marshal(Payload{KeyAgreementReference: "ref-1", "seq": i})
		assert.Nil(s.T(), err)
		s.store.appended = append(s.store.appended, &model.Notification{
			ID:                 xid.New().String(),
			Code:               string(code),
			AgreementReference: "ref-1",
			Payload:            pgtype.JSONB{Bytes: raw, Status: pgtype.Present},
			Version:            "1",
			CreatedAt:          time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	raw := marshal(s, &Envelope{
		Code: CodeResendRequest,
		Payload: Payload{
			KeyAgreementReference: "ref-1",
			KeyRequester:          "peer-7",
		},
	})

	s.inbox.dispatch(raw)

	replayed := s.transport.direct["peer-7"]
	assert.Len(s.T(), replayed, 3)
	assert.Equal(s.T(), CodeAgreementNew, replayed[0].(*Envelope).Code)
	assert.Equal(s.T(), CodeJobSucceeded, replayed[2].(*Envelope).Code)
	assert.EqualValues(s.T(), 3, s.monitor.GetReport().Comms.State.MessagesReplayed.Load())
}

func (s *InboxTestSuite) TestResendWithoutRequesterIsRejected() {
	raw := marshal(s, &Envelope{
		Code:    CodeResendRequest,
		Payload: Payload{KeyAgreementReference: "ref-1"},
	})

	s.inbox.dispatch(raw)

	assert.Empty(s.T(), s.transport.direct)
	assert.EqualValues(s.T(), 1, s.monitor.GetReport().Comms.Errors.Inbound.Load())
}

func (s *InboxTestSuite) TestMalformedMessageIsCountedAndDropped() {
	s.inbox.dispatch([]byte("not json at all"))

	assert.EqualValues(s.T(), 1, s.monitor.GetReport().Comms.Errors.Inbound.Load())
}

func (s *InboxTestSuite) TestUnknownCodeIsIgnored() {
	raw := marshal(s, &Envelope{
		Code:    CodeJobStarted,
		Payload: Payload{KeyAgreementReference: "ref-1"},
	})

	s.inbox.dispatch(raw)

	assert.Empty(s.T(), s.hints.references)
	assert.Empty(s.T(), s.transport.direct)
	assert.EqualValues(s.T(), 0, s.monitor.GetReport().Comms.Errors.Inbound.Load())
}
