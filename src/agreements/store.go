package agreements

import (
	"context"
	"errors"

	"github.com/blobsync/pinner/src/utils/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("agreement not found")

// Store persists agreements. Events for one agreement reference are
// processed sequentially so last-writer-wins saves are enough here.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts or fully updates the row keyed by the agreement
// reference. Safe to call twice with the same event payload.
func (self *Store) Upsert(ctx context.Context, agreement *model.Agreement) (out *model.Agreement, err error) {
	err = self.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agreement_reference"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"data_reference",
				"consumer",
				"size",
				"is_active",
				"billing_period",
				"billing_price",
				"token_address",
				"available_funds",
				"last_payout",
				"expired_at_block_number",
				"updated_at",
			}),
		}).
		Create(agreement).
		Error
	if err != nil {
		return
	}
	return agreement, nil
}

func (self *Store) FindByReference(ctx context.Context, reference string) (out *model.Agreement, err error) {
	out = new(model.Agreement)
	err = self.db.WithContext(ctx).
		Where("agreement_reference = ?", reference).
		First(out).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return
}

func (self *Store) Save(ctx context.Context, agreement *model.Agreement) (err error) {
	return self.db.WithContext(ctx).Save(agreement).Error
}

// FindActiveUnmarked returns active agreements not yet condemned.
// The funds check happens in code, it needs decimal arithmetic.
func (self *Store) FindActiveUnmarked(ctx context.Context) (out []*model.Agreement, err error) {
	err = self.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("expired_at_block_number IS NULL").
		Find(&out).
		Error
	return
}

// FindCondemnedBefore returns active agreements whose condemnation is
// older than the given height, i.e. past the confirmation window.
func (self *Store) FindCondemnedBefore(ctx context.Context, height int64) (out []*model.Agreement, err error) {
	err = self.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("expired_at_block_number IS NOT NULL").
		Where("expired_at_block_number <= ?", height).
		Find(&out).
		Error
	return
}
