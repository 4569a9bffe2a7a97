package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the closed set of domain events the feed can deliver.
type Kind string

const (
	KindNewAgreement     Kind = "NewAgreement"
	KindAgreementStopped Kind = "AgreementStopped"
	KindFundsDeposited   Kind = "AgreementFundsDeposited"
	KindFundsWithdrawn   Kind = "AgreementFundsWithdrawn"
	KindFundsPayout      Kind = "AgreementFundsPayout"
	KindTotalCapacitySet Kind = "TotalCapacitySet"
	KindMessageEmitted   Kind = "MessageEmitted"
	KindNewBlock         Kind = "NewBlock"
)

// Event is one inbound domain event. Delivery is at least once and only
// ordered within a single agreement reference.
type Event struct {
	Kind Kind `json:"kind"`

	// Height of the block the event was observed in
	BlockNumber int64 `json:"blockNumber"`

	// Offer (provider) the event is addressed to. Empty for
	// agreement-scoped events on shared feeds.
	Offer string `json:"offer,omitempty"`

	AgreementReference string `json:"agreementReference,omitempty"`

	DataReference string          `json:"dataReference,omitempty"`
	Consumer      string          `json:"consumer,omitempty"`
	Size          decimal.Decimal `json:"size,omitempty"`
	BillingPeriod decimal.Decimal `json:"billingPeriod,omitempty"`
	BillingPrice  decimal.Decimal `json:"billingPrice,omitempty"`
	TokenAddress  string          `json:"tokenAddress,omitempty"`

	// Post-state of the funds, not a delta
	AvailableFunds decimal.Decimal `json:"availableFunds,omitempty"`

	// Effective timestamp of a payout event
	PayoutAt time.Time `json:"payoutAt,omitempty"`

	// Offer-level capacity for TotalCapacitySet
	TotalCapacity decimal.Decimal `json:"totalCapacity,omitempty"`

	// Peer multiaddrs carried by MessageEmitted announcements
	Multiaddrs []string `json:"multiaddrs,omitempty"`
}
