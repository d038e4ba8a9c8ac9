package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/internal/enum"
	"github.com/customeros/mailtriage/internal/utils"
)

// Message is the replica of one source email.
// Only IsRead, IsFlagged and Deleted change after insert (sync), and the
// classification columns (worker).
type Message struct {
	ID              string     `gorm:"column:id;type:varchar(50);primaryKey"`
	Tenant          string     `gorm:"column:tenant;type:varchar(255);not null;uniqueIndex:uq_message_source_row,priority:1"`
	SourceRowID     int64      `gorm:"column:source_row_id;not null;uniqueIndex:uq_message_source_row,priority:2"`
	SenderAddressID *string    `gorm:"column:sender_address_id;type:varchar(50);index"`
	SubjectID       *string    `gorm:"column:subject_id;type:varchar(50);index"`
	MailboxID       *string    `gorm:"column:mailbox_id;type:varchar(50);index"`
	DateReceived    time.Time  `gorm:"column:date_received;type:timestamp;not null;index"`
	DateSent        *time.Time `gorm:"column:date_sent;type:timestamp"`
	IsRead          bool       `gorm:"column:is_read;not null;default:false"`
	IsFlagged       bool       `gorm:"column:is_flagged;not null;default:false"`
	Deleted         bool       `gorm:"column:deleted;not null;default:false;index"`
	ContentSnippet  string     `gorm:"column:content_snippet;type:text"`

	Classified             bool                      `gorm:"column:classified;not null;default:false;index"`
	ClassificationStatus   enum.ClassificationStatus `gorm:"column:classification_status;type:varchar(50);not null;default:'pending';index"`
	ClassificationError    string                    `gorm:"column:classification_error;type:text"`
	ClassificationAttempts int                       `gorm:"column:classification_attempts;not null;default:0"`

	Sender  *Address `gorm:"foreignKey:SenderAddressID"`
	Subject *Subject `gorm:"foreignKey:SubjectID"`
	Mailbox *Mailbox `gorm:"foreignKey:MailboxID"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("msg", 20)
	}
	if m.ClassificationStatus == "" {
		m.ClassificationStatus = enum.ClassificationPending
	}
	return nil
}

func (m *Message) SubjectText() string {
	if m.Subject == nil {
		return ""
	}
	return m.Subject.Text
}

func (m *Message) SenderEmail() string {
	if m.Sender == nil {
		return ""
	}
	return m.Sender.EmailAddress
}
