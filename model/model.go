package model

import (
	"time"
)

// Step is a named stage of the scripted funnel. Exactly one per user.
type Step string

const (
	StepStart          Step = "start"
	StepVideo1         Step = "video1"
	StepVideo2         Step = "video2"
	StepVideo3         Step = "video3"
	StepPaymentChoice  Step = "payment_choice"
	StepWaitingReceipt Step = "waiting_receipt"
	StepCompleted      Step = "completed"
)

// TrackableSteps are the steps the escalation scheduler watches.
var TrackableSteps = []Step{StepStart, StepVideo1, StepVideo2, StepVideo3}

type Currency string

const (
	CurrencyRUB Currency = "RUB"
	CurrencyUAH Currency = "UAH"
	CurrencyEUR Currency = "EUR"
)

type User struct {
	ID        int64 `gorm:"primaryKey"` // Telegram User ID
	Username  string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time

	CurrentStep          Step `gorm:"type:varchar(32);default:start;index"`
	CurrentStepChangedAt time.Time
	LastActivityAt       time.Time

	Currency Currency `gorm:"type:varchar(8)"`
	HasPaid  bool     `gorm:"default:false;index"`
	PaidAt   *time.Time

	// Escalation flags: one per (trackable step, level).
	ReminderL1Start  bool `gorm:"default:false"`
	ReminderL2Start  bool `gorm:"default:false"`
	ReminderL3Start  bool `gorm:"default:false"`
	ReminderL1Video1 bool `gorm:"default:false"`
	ReminderL2Video1 bool `gorm:"default:false"`
	ReminderL3Video1 bool `gorm:"default:false"`
	ReminderL1Video2 bool `gorm:"default:false"`
	ReminderL2Video2 bool `gorm:"default:false"`
	ReminderL3Video2 bool `gorm:"default:false"`
	ReminderL1Video3 bool `gorm:"default:false"`
	ReminderL2Video3 bool `gorm:"default:false"`
	ReminderL3Video3 bool `gorm:"default:false"`

	// Warmup flags: single level, two earliest steps only.
	WarmupStartSent  bool `gorm:"default:false"`
	WarmupVideo1Sent bool `gorm:"default:false"`

	Actions []UserAction `gorm:"foreignKey:UserID"`
}

// UserAction is an append-only event record, used for reporting only.
type UserAction struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"index"`
	Action    string
	Step      string
	Metadata  string `gorm:"type:text"`
	Timestamp time.Time
}
