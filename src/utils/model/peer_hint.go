package model

import (
	"time"

	"github.com/jackc/pgtype"
)

const TablePeerHint = "peer_hints"

// PeerHint is a short lived rendezvous record telling the pin workflow how
// to reach the content owner directly. Consumed at most once.
type PeerHint struct {
	AgreementReference string `gorm:"primaryKey"`

	// JSON list of multiaddrs
	Addresses pgtype.JSONB `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"index"`
}

func (PeerHint) TableName() string {
	return TablePeerHint
}
