package outbox

import (
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/db/models"
)

// errorLimit bounds stored error text; gateway SDK errors can embed whole
// response bodies.
const errorLimit = 1024

// DLQRepository keeps the rows the relay gave up on, with the reason, for
// manual replay.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		clipped := clip(*entry.ErrorMessage)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

func clipError(err error) string {
	if err == nil {
		return ""
	}
	return clip(err.Error())
}

func clip(msg string) string {
	if len(msg) <= errorLimit {
		return msg
	}
	return msg[:errorLimit]
}
