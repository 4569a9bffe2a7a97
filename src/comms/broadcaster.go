package comms

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/logger"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/transport"

	"github.com/jackc/pgtype"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

var ErrMissingAgreementReference = errors.New("payload is missing the agreement reference")

// Broadcaster persists every notification into the bounded log and hands
// it to the transport for fan-out. Persisting happens first so a replay
// request can always serve what was broadcast.
type Broadcaster struct {
	config    *config.Config
	log       *logrus.Entry
	store     Log
	transport transport.Transport
	monitor   *monitoring.Monitor
}

func NewBroadcaster(config *config.Config) (self *Broadcaster) {
	self = new(Broadcaster)
	self.config = config
	self.log = logger.NewSublogger("broadcaster")
	return
}

func (self *Broadcaster) WithLog(store Log) *Broadcaster {
	self.store = store
	return self
}

func (self *Broadcaster) WithTransport(transport transport.Transport) *Broadcaster {
	self.transport = transport
	return self
}

func (self *Broadcaster) WithMonitor(monitor *monitoring.Monitor) *Broadcaster {
	self.monitor = monitor
	return self
}

func (self *Broadcaster) Broadcast(ctx context.Context, code Code, payload Payload) (err error) {
	reference := payload.AgreementReference()
	if reference == "" {
		return ErrMissingAgreementReference
	}

	envelope := &Envelope{
		Code:      code,
		Payload:   payload,
		Version:   self.config.Comms.Version,
		Timestamp: time.Now().UnixMilli(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}

	err = self.store.Append(ctx, &model.Notification{
		ID:                 xid.New().String(),
		Code:               string(code),
		AgreementReference: reference,
		Payload:            pgtype.JSONB{Bytes: raw, Status: pgtype.Present},
		Version:            envelope.Version,
		CreatedAt:          time.UnixMilli(envelope.Timestamp),
	})
	if err != nil {
		return
	}

	evicted, err := self.store.EvictBeyond(ctx, reference, self.config.Comms.RetentionCount)
	if err != nil {
		return
	}
	if evicted > 0 {
		self.monitor.GetReport().Comms.State.NotificationsEvicted.Add(uint64(evicted))
	}

	err = self.transport.Publish(ctx, envelope)
	if err != nil {
		return
	}

	self.monitor.GetReport().Comms.State.NotificationsPublished.Inc()
	return
}
