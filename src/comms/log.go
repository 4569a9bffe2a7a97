package comms

import (
	"context"

	"github.com/blobsync/pinner/src/utils/model"

	"gorm.io/gorm"
)

// Log is the persisted, retention bounded notification history.
type Log interface {
	Append(ctx context.Context, notification *model.Notification) (err error)

	// EvictBeyond removes the oldest rows of one agreement reference
	// past the keep count
	EvictBeyond(ctx context.Context, agreementReference string, keep int) (removed int64, err error)

	// Latest returns up to limit newest rows for the reference,
	// optionally filtered by code
	Latest(ctx context.Context, agreementReference string, code Code, limit int) (out []*model.Notification, err error)
}

type NotificationLog struct {
	db *gorm.DB
}

func NewNotificationLog(db *gorm.DB) *NotificationLog {
	return &NotificationLog{db: db}
}

func (self *NotificationLog) Append(ctx context.Context, notification *model.Notification) (err error) {
	return self.db.WithContext(ctx).Create(notification).Error
}

func (self *NotificationLog) EvictBeyond(ctx context.Context, agreementReference string, keep int) (removed int64, err error) {
	kept := self.db.
		Model(&model.Notification{}).
		Select("id").
		Where("agreement_reference = ?", agreementReference).
		Order("created_at DESC, id DESC").
		Limit(keep)

	result := self.db.WithContext(ctx).
		Where("agreement_reference = ?", agreementReference).
		Where("id NOT IN (?)", kept).
		Delete(&model.Notification{})

	return result.RowsAffected, result.Error
}

func (self *NotificationLog) Latest(ctx context.Context, agreementReference string, code Code, limit int) (out []*model.Notification, err error) {
	query := self.db.WithContext(ctx).
		Where("agreement_reference = ?", agreementReference).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if code != "" {
		query = query.Where("code = ?", string(code))
	}

	err = query.Find(&out).Error
	return
}
