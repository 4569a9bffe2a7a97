package comms

import (
	"encoding/json"
)

// Payload is the free-form body of a broadcast message. It must carry
// the agreement reference it concerns.
type Payload map[string]interface{}

func (self Payload) AgreementReference() string {
	reference, _ := self[KeyAgreementReference].(string)
	return reference
}

// Envelope is the wire and storage shape of one notification.
type Envelope struct {
	Code      Code    `json:"code"`
	Payload   Payload `json:"payload"`
	Version   string  `json:"version"`
	Timestamp int64   `json:"timestamp"`
}

func (self *Envelope) MarshalBinary() (data []byte, err error) {
	return json.Marshal(self)
}

func (self *Envelope) UnmarshalBinary(data []byte) (err error) {
	return json.Unmarshal(data, self)
}
