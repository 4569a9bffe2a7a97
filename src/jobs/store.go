package jobs

import (
	"context"

	"github.com/blobsync/pinner/src/utils/model"

	"gorm.io/gorm"
)

// Store persists job rows between state transitions
type Store interface {
	SaveJob(ctx context.Context, job *model.Job) (err error)
}

type JobStore struct {
	db *gorm.DB
}

func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

func (self *JobStore) SaveJob(ctx context.Context, job *model.Job) (err error) {
	return self.db.WithContext(ctx).Save(job).Error
}
