package comms

import (
	"context"
	"encoding/json"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/model"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/task"
	"github.com/blobsync/pinner/src/utils/transport"
)

// HintSink stores peer address hints announced by other peers
type HintSink interface {
	Put(ctx context.Context, agreementReference string, addresses []string) (err error)
}

// Inbox dispatches inbound transport messages by code.
// Unknown codes are logged and dropped, a misbehaving peer must not be
// able to stop the engine.
type Inbox struct {
	*task.Task

	store     Log
	hints     HintSink
	transport transport.Transport
	monitor   *monitoring.Monitor
}

func NewInbox(config *config.Config) (self *Inbox) {
	self = new(Inbox)

	self.Task = task.NewTask(config, "inbox").
		WithSubtaskFunc(self.run)

	return
}

func (self *Inbox) WithLog(store Log) *Inbox {
	self.store = store
	return self
}

func (self *Inbox) WithHints(hints HintSink) *Inbox {
	self.hints = hints
	return self
}

func (self *Inbox) WithTransport(transport transport.Transport) *Inbox {
	self.transport = transport
	return self
}

func (self *Inbox) WithMonitor(monitor *monitoring.Monitor) *Inbox {
	self.monitor = monitor
	return self
}

func (self *Inbox) run() (err error) {
	for {
		select {
		case <-self.StopChannel:
			return nil
		case raw, ok := <-self.transport.Messages():
			if !ok {
				return nil
			}
			self.dispatch(raw)
		}
	}
}

func (self *Inbox) dispatch(raw []byte) {
	var envelope Envelope
	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		self.Log.WithError(err).Error("Failed to unmarshal inbound message")
		self.monitor.GetReport().Comms.Errors.Inbound.Inc()
		return
	}

	switch envelope.Code {
	case CodePeerMultiaddr:
		self.onPeerMultiaddr(&envelope)
	case CodeResendRequest:
		self.onResendRequest(&envelope)
	default:
		// Not for us, other codes are outbound only
		self.Log.WithField("code", envelope.Code).Debug("Ignoring inbound message with unhandled code")
	}
}

func (self *Inbox) onPeerMultiaddr(envelope *Envelope) {
	reference := envelope.Payload.AgreementReference()
	if reference == "" {
		self.Log.Error("Multiaddr announcement without agreement reference")
		self.monitor.GetReport().Comms.Errors.Inbound.Inc()
		return
	}

	addresses := toStringSlice(envelope.Payload[KeyMultiaddrs])
	if len(addresses) == 0 {
		self.Log.WithField("reference", reference).Error("Multiaddr announcement without addresses")
		self.monitor.GetReport().Comms.Errors.Inbound.Inc()
		return
	}

	err := self.hints.Put(self.Ctx, reference, addresses)
	if err != nil {
		self.Log.WithError(err).WithField("reference", reference).Error("Failed to store peer hint")
		self.monitor.GetReport().Comms.Errors.Inbound.Inc()
	}
}

func (self *Inbox) onResendRequest(envelope *Envelope) {
	reference := envelope.Payload.AgreementReference()
	requester, _ := envelope.Payload[KeyRequester].(string)
	if reference == "" || requester == "" {
		self.Log.Error("Resend request without agreement reference or requester")
		self.monitor.GetReport().Comms.Errors.Inbound.Inc()
		return
	}

	// Optional code filter
	code, _ := envelope.Payload[KeyCode].(string)

	notifications, err := self.store.Latest(self.Ctx, reference, Code(code), self.Config.Comms.RetentionCount)
	if err != nil {
		self.Log.WithError(err).WithField("reference", reference).Error("Failed to load notifications for replay")
		self.monitor.GetReport().Comms.Errors.Inbound.Inc()
		return
	}

	// Latest returns newest first, replay in original order
	for i := len(notifications) - 1; i >= 0; i-- {
		out, err := toEnvelope(notifications[i])
		if err != nil {
			self.Log.WithError(err).Error("Failed to rebuild stored notification")
			continue
		}

		err = self.transport.SendDirect(self.Ctx, requester, out)
		if err != nil {
			self.Log.WithError(err).WithField("requester", requester).Error("Failed to replay notification")
			self.monitor.GetReport().Comms.Errors.Inbound.Inc()
			return
		}
		self.monitor.GetReport().Comms.State.MessagesReplayed.Inc()
	}
}

func toEnvelope(notification *model.Notification) (out *Envelope, err error) {
	var payload Payload
	err = json.Unmarshal(notification.Payload.Bytes, &payload)
	if err != nil {
		return
	}

	out = &Envelope{
		Code:      Code(notification.Code),
		Payload:   payload,
		Version:   notification.Version,
		Timestamp: notification.CreatedAt.UnixMilli(),
	}
	return
}

func toStringSlice(v interface{}) (out []string) {
	switch values := v.(type) {
	case []string:
		return values
	case []interface{}:
		for _, value := range values {
			if s, ok := value.(string); ok {
				out = append(out, s)
			}
		}
	}
	return
}
