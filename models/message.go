package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/cppla/microblog/utils"
)

// Message is a private note from one user to another.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SenderID    uint      `gorm:"index;not null" json:"sender_id"`
	RecipientID uint      `gorm:"index;not null" json:"recipient_id"`
	Body        string    `gorm:"size:140;not null" json:"body"`
	SentAt      time.Time `gorm:"index;not null" json:"timestamp"`
	Sender      User      `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE;" json:"author"`
	Recipient   User      `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE;" json:"recipient"`
}

// BeforeCreate stamps SentAt when the caller did not.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	return nil
}

// SendMessage stores a message from sender to recipient.
func SendMessage(db *gorm.DB, sender, recipient *User, body string) (*Message, error) {
	body, err := cleanBody(body)
	if err != nil {
		return nil, err
	}
	m := &Message{SenderID: sender.ID, RecipientID: recipient.ID, Body: body}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	m.Sender, m.Recipient = *sender, *recipient
	return m, nil
}

// FindMessage loads a message with both parties.
func FindMessage(db *gorm.DB, id uint) (*Message, error) {
	var m Message
	if err := db.Preload("Sender").Preload("Recipient").First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MessagesReceived is the query of messages addressed to the user, newest first.
func (u *User) MessagesReceived(db *gorm.DB) *gorm.DB {
	return db.Model(&Message{}).Where("recipient_id = ?", u.ID).
		Order("sent_at DESC").Order("id DESC").Session(&gorm.Session{})
}

// UnreadMessageCount counts messages received after the user last opened their inbox.
func (u *User) UnreadMessageCount(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Message{}).
		Where("recipient_id = ? AND sent_at > ?", u.ID, u.lastRead()).
		Count(&n).Error
	return n, err
}

// MarkMessagesRead moves the user's read marker to at.
func (u *User) MarkMessagesRead(db *gorm.DB, at time.Time) error {
	at = at.UTC()
	if err := db.Model(&User{}).Where("id = ?", u.ID).UpdateColumn("last_message_read_time", at).Error; err != nil {
		return err
	}
	u.LastMessageReadTime = &at
	return nil
}

// IsUnread reports whether the recipient has not yet seen m.
func (m *Message) IsUnread(recipient *User) bool {
	return m.SentAt.After(recipient.lastRead())
}

// EditMessage changes the body of a message. Only the sender may edit, and only while the
// recipient has not read it. SentAt is kept so the message stays in place.
func EditMessage(db *gorm.DB, m *Message, editorID uint, body string) error {
	if m.SenderID != editorID {
		return ErrNotAuthor
	}
	recipient, err := FindUserByID(db, m.RecipientID)
	if err != nil {
		return err
	}
	if !m.IsUnread(recipient) {
		return ErrMessageRead
	}
	body, err = cleanBody(body)
	if err != nil {
		return err
	}
	if err := db.Model(m).UpdateColumn("body", body).Error; err != nil {
		return err
	}
	m.Body = body
	return nil
}

// PageMessages counts q and loads the requested page with senders.
func PageMessages(q *gorm.DB, page utils.Page) ([]Message, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var msgs []Message
	err := q.Preload("Sender").Offset(page.Offset()).Limit(page.Size).Find(&msgs).Error
	return msgs, total, err
}
