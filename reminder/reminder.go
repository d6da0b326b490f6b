package reminder

import (
	"log/slog"
	"strings"
	"time"

	"reels-funnel-bot/bot"
	"reels-funnel-bot/model"
	"reels-funnel-bot/store"
)

// Default escalation thresholds, identical across all trackable steps.
var DefaultThresholds = [3]time.Duration{
	5 * time.Minute,
	time.Hour,
	24 * time.Hour,
}

// Scheduler drives the escalation reminders: four trackable steps,
// three levels each, evaluated independently on every tick. All state
// lives in the user rows, so a restart loses at most one tick of
// timing precision.
type Scheduler struct {
	Store      *store.Store
	Sender     Sender
	Catalog    *Catalog
	Log        *slog.Logger
	Thresholds [3]time.Duration
	SendDelay  time.Duration // pause between sends, outbound rate limit
}

func NewScheduler(st *store.Store, sender Sender, catalog *Catalog, log *slog.Logger) *Scheduler {
	return &Scheduler{
		Store:      st,
		Sender:     sender,
		Catalog:    catalog,
		Log:        log,
		Thresholds: DefaultThresholds,
		SendDelay:  50 * time.Millisecond,
	}
}

// Tick evaluates every (step, level) cell. Registered with cron on a
// one-minute schedule.
func (s *Scheduler) Tick() {
	for _, step := range model.TrackableSteps {
		for level := 1; level <= 3; level++ {
			s.runCell(step, level)
		}
	}
}

func (s *Scheduler) runCell(step model.Step, level int) {
	users, err := s.Store.DueForReminder(step, level, s.Thresholds[level-1])
	if err != nil {
		s.Log.Error("reminder selection failed", "step", step, "level", level, "error", err)
		return
	}
	if len(users) == 0 {
		return
	}

	msg, ok := s.Catalog.Reminder(step, level)
	if !ok {
		s.Log.Warn("no reminder copy for cell", "step", step, "level", level)
		return
	}

	s.Log.Info("sending reminders", "step", step, "level", level, "users", len(users))

	for _, user := range users {
		err := s.Sender.SendMessage(user.ID, renderText(msg.Text, user), msg.Buttons)
		if err != nil {
			s.Log.Warn("reminder send failed", "user", user.ID, "step", step, "level", level, "error", err)
		}
		// The flag is written whether or not the send succeeded: a user
		// who blocked the bot must not be retried every tick.
		if err := s.Store.MarkReminderSent(user.ID, step, level); err != nil {
			s.Log.Error("reminder flag not persisted", "user", user.ID, "step", step, "level", level, "error", err)
		}
		if s.SendDelay > 0 {
			time.Sleep(s.SendDelay)
		}
	}
}

// renderText fills the name placeholder and resolves gendered markers.
func renderText(text string, user model.User) string {
	name := user.FirstName
	if name == "" {
		name = "Друг"
	}
	text = strings.ReplaceAll(text, "{name}", name)
	return bot.Personalize(text, bot.DetectGender(user.FirstName))
}
