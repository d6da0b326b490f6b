package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reels-funnel-bot/model"

	"gorm.io/gorm"
)

// Store wraps the relational store with the step transition API, the
// action log and the scheduler selection queries. All writes are
// single-row updates; there are no cross-row transactions.
type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) AutoMigrate() error {
	return s.DB.AutoMigrate(&model.User{}, &model.UserAction{})
}

// GetOrCreate returns the user record, creating it with funnel defaults
// on first interaction. Existing users get a LastActivityAt refresh.
func (s *Store) GetOrCreate(id int64, username, firstName, lastName string) (*model.User, error) {
	var user model.User
	err := s.DB.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now()
		user = model.User{
			ID:                   id,
			Username:             username,
			FirstName:            firstName,
			LastName:             lastName,
			CurrentStep:          model.StepStart,
			CurrentStepChangedAt: now,
			LastActivityAt:       now,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}
	s.DB.Model(&user).UpdateColumn("last_activity_at", time.Now())
	return &user, nil
}

func (s *Store) Get(id int64) (*model.User, error) {
	var user model.User
	if err := s.DB.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Transition moves the user to a new funnel step. The step and its
// change timestamp are written in a single update so they can never go
// out of sync. Last write wins; no step-order validation.
func (s *Store) Transition(id int64, step model.Step) error {
	now := time.Now()
	return s.DB.Model(&model.User{}).Where("id = ?", id).Updates(map[string]any{
		"current_step":            step,
		"current_step_changed_at": now,
		"last_activity_at":        now,
	}).Error
}

func (s *Store) SetCurrency(id int64, currency model.Currency) error {
	return s.DB.Model(&model.User{}).Where("id = ?", id).Updates(map[string]any{
		"currency":         currency,
		"last_activity_at": time.Now(),
	}).Error
}

// MarkPaid records the payment outcome. Terminal: the step is forced to
// completed in the same update.
func (s *Store) MarkPaid(id int64) error {
	now := time.Now()
	return s.DB.Model(&model.User{}).Where("id = ?", id).Updates(map[string]any{
		"has_paid":                true,
		"paid_at":                 now,
		"current_step":            model.StepCompleted,
		"current_step_changed_at": now,
		"last_activity_at":        now,
	}).Error
}

// LogAction appends a named event to the action log. Write-once, read
// only by reporting.
func (s *Store) LogAction(id int64, action string, step model.Step, metadata map[string]any) error {
	var meta string
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	return s.DB.Create(&model.UserAction{
		UserID:    id,
		Action:    action,
		Step:      string(step),
		Metadata:  meta,
		Timestamp: time.Now(),
	}).Error
}

// reminderColumns maps (step, level) to the flag column. The table is
// the single source of truth for the twelve escalation flags.
var reminderColumns = map[model.Step][3]string{
	model.StepStart:  {"reminder_l1_start", "reminder_l2_start", "reminder_l3_start"},
	model.StepVideo1: {"reminder_l1_video1", "reminder_l2_video1", "reminder_l3_video1"},
	model.StepVideo2: {"reminder_l1_video2", "reminder_l2_video2", "reminder_l3_video2"},
	model.StepVideo3: {"reminder_l1_video3", "reminder_l2_video3", "reminder_l3_video3"},
}

var warmupColumns = map[model.Step]string{
	model.StepStart:  "warmup_start_sent",
	model.StepVideo1: "warmup_video1_sent",
}

func reminderColumn(step model.Step, level int) (string, error) {
	cols, ok := reminderColumns[step]
	if !ok {
		return "", fmt.Errorf("step %q has no reminder flags", step)
	}
	if level < 1 || level > 3 {
		return "", fmt.Errorf("reminder level %d out of range", level)
	}
	return cols[level-1], nil
}

// DueForReminder selects users eligible for the (step, level) reminder:
// still on the step, unpaid, this level not yet sent, the previous level
// already sent, and sitting on the step at least `threshold`.
func (s *Store) DueForReminder(step model.Step, level int, threshold time.Duration) ([]model.User, error) {
	col, err := reminderColumn(step, level)
	if err != nil {
		return nil, err
	}
	q := s.DB.
		Where("current_step = ? AND has_paid = ?", step, false).
		Where(col+" = ?", false).
		Where("current_step_changed_at <= ?", time.Now().Add(-threshold))
	if level > 1 {
		prev, err := reminderColumn(step, level-1)
		if err != nil {
			return nil, err
		}
		q = q.Where(prev+" = ?", true)
	}
	var users []model.User
	if err := q.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// MarkReminderSent sets the flag for one (user, step, level). Called
// after the send attempt regardless of its outcome, so a user who
// blocked the bot is never retried.
func (s *Store) MarkReminderSent(id int64, step model.Step, level int) error {
	col, err := reminderColumn(step, level)
	if err != nil {
		return err
	}
	return s.DB.Model(&model.User{}).Where("id = ?", id).UpdateColumn(col, true).Error
}

func (s *Store) DueForWarmup(step model.Step, threshold time.Duration) ([]model.User, error) {
	col, ok := warmupColumns[step]
	if !ok {
		return nil, fmt.Errorf("step %q has no warmup flag", step)
	}
	var users []model.User
	err := s.DB.
		Where("current_step = ? AND has_paid = ?", step, false).
		Where(col+" = ?", false).
		Where("current_step_changed_at <= ?", time.Now().Add(-threshold)).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) MarkWarmupSent(id int64, step model.Step) error {
	col, ok := warmupColumns[step]
	if !ok {
		return fmt.Errorf("step %q has no warmup flag", step)
	}
	return s.DB.Model(&model.User{}).Where("id = ?", id).UpdateColumn(col, true).Error
}

// FunnelStats counts users per current step.
func (s *Store) FunnelStats() (map[model.Step]int64, error) {
	type row struct {
		Step  model.Step
		Count int64
	}
	var rows []row
	err := s.DB.Model(&model.User{}).
		Select("current_step AS step, COUNT(*) AS count").
		Group("current_step").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := make(map[model.Step]int64, len(rows))
	for _, r := range rows {
		stats[r.Step] = r.Count
	}
	return stats, nil
}

func (s *Store) ConversionRate() (total, paid int64, rate float64, err error) {
	if err = s.DB.Model(&model.User{}).Count(&total).Error; err != nil {
		return
	}
	if err = s.DB.Model(&model.User{}).Where("has_paid = ?", true).Count(&paid).Error; err != nil {
		return
	}
	if total > 0 {
		rate = float64(paid) / float64(total) * 100
	}
	return
}

// StuckAtStep finds unpaid users idle on a step longer than the cutoff.
// Used by retargeting reports, not by the scheduler.
func (s *Store) StuckAtStep(step model.Step, idle time.Duration) ([]model.User, error) {
	var users []model.User
	err := s.DB.
		Where("current_step = ? AND has_paid = ?", step, false).
		Where("last_activity_at < ?", time.Now().Add(-idle)).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CompletedUsers() ([]model.User, error) {
	var users []model.User
	if err := s.DB.Where("has_paid = ?", true).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
