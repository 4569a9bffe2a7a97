package hints

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/blobsync/pinner/src/utils/model"

	"github.com/jackc/pgtype"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store keeps short lived peer address hints. A hint is consumed at most
// once, consuming deletes it so a replayed announcement can't resurrect
// a stale address list.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (self *Store) Put(ctx context.Context, agreementReference string, addresses []string) (err error) {
	raw, err := json.Marshal(addresses)
	if err != nil {
		return
	}

	hint := &model.PeerHint{
		AgreementReference: agreementReference,
		Addresses:          pgtype.JSONB{Bytes: raw, Status: pgtype.Present},
		CreatedAt:          time.Now(),
	}

	return self.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agreement_reference"}},
			DoUpdates: clause.AssignmentColumns([]string{"addresses", "created_at"}),
		}).
		Create(hint).
		Error
}

// Consume returns the addresses for the reference and deletes the hint.
// A missing hint is not an error, pinning just proceeds without it.
func (self *Store) Consume(ctx context.Context, agreementReference string) (addresses []string, err error) {
	var hint model.PeerHint
	err = self.db.WithContext(ctx).
		Where("agreement_reference = ?", agreementReference).
		First(&hint).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return
	}

	err = self.db.WithContext(ctx).Delete(&hint).Error
	if err != nil {
		return
	}

	err = json.Unmarshal(hint.Addresses.Bytes, &addresses)
	return
}

// DeleteOlderThan removes hints past their time to live
func (self *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (removed int64, err error) {
	result := self.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.PeerHint{})
	return result.RowsAffected, result.Error
}
