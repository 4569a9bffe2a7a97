package events

import (
	"context"

	"github.com/blobsync/pinner/src/utils/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateStore records the last fully processed block tick
type StateStore interface {
	SaveLastSeenHeight(ctx context.Context, height int64) (err error)
}

type GormStateStore struct {
	db *gorm.DB
}

func NewGormStateStore(db *gorm.DB) *GormStateStore {
	return &GormStateStore{db: db}
}

func (self *GormStateStore) SaveLastSeenHeight(ctx context.Context, height int64) (err error) {
	return self.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen_block_height"}),
		}).
		Create(&model.State{Id: 1, LastSeenBlockHeight: height}).
		Error
}
