package model

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const TableAgreement = "agreements"

// Agreement is a funded commitment by a consumer to keep one content
// addressed blob pinned by this provider.
type Agreement struct {
	// Content hash derived from consumer, data reference and token.
	// The event feed supplies it, it's never re-derived locally.
	AgreementReference string `gorm:"primaryKey"`

	// Content address of the pinned data
	DataReference string `gorm:"not null; index"`

	// Payer identity
	Consumer string `gorm:"not null"`

	// Agreed capacity in bytes
	Size decimal.Decimal `gorm:"type:numeric; not null"`

	IsActive bool `gorm:"not null; index"`

	// Billing period in seconds
	BillingPeriod decimal.Decimal `gorm:"type:numeric; not null"`

	// Price per period per unit of size
	BillingPrice decimal.Decimal `gorm:"type:numeric; not null"`

	TokenAddress string

	AvailableFunds decimal.Decimal `gorm:"type:numeric; not null"`

	LastPayout time.Time

	// First block height at which insufficient funds was observed.
	// Null unless the agreement is provisionally condemned.
	ExpiredAtBlockNumber sql.NullInt64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Agreement) TableName() string {
	return TableAgreement
}

// PeriodPrice is the price of keeping the whole blob for one billing period
func (self *Agreement) PeriodPrice() decimal.Decimal {
	return self.Size.Mul(self.BillingPrice)
}

func (self *Agreement) PeriodsSinceLastPayout(now time.Time) decimal.Decimal {
	elapsed := now.Sub(self.LastPayout)
	if elapsed <= 0 || self.BillingPeriod.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(elapsed / time.Second)).
		Div(self.BillingPeriod).
		Floor()
}

// AmountOwed is capped by the available funds, the provider can never be
// owed more than what was deposited
func (self *Agreement) AmountOwed(now time.Time) decimal.Decimal {
	owed := self.PeriodsSinceLastPayout(now).Mul(self.PeriodPrice())
	return decimal.Min(owed, self.AvailableFunds)
}

func (self *Agreement) HasSufficientFunds(now time.Time) bool {
	remaining := self.AvailableFunds.Sub(self.AmountOwed(now))
	return remaining.Cmp(self.PeriodPrice()) >= 0
}

// ExpiresInSeconds tells how long the remaining funds keep the agreement
// running, zero when the funds already don't cover the next period
func (self *Agreement) ExpiresInSeconds(now time.Time) decimal.Decimal {
	if !self.HasSufficientFunds(now) {
		return decimal.Zero
	}
	periodPrice := self.PeriodPrice()
	if periodPrice.IsZero() {
		return decimal.Zero
	}
	return self.AvailableFunds.Sub(self.AmountOwed(now)).
		Div(periodPrice).
		Mul(self.BillingPeriod).
		Floor()
}
