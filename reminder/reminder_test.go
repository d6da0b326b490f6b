package reminder

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"reels-funnel-bot/model"
	"reels-funnel-bot/store"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sentMessage struct {
	UserID int64
	Text   string
}

type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	albums   int
	fail     bool
}

func (f *fakeSender) SendMessage(userID int64, text string, buttons []Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{UserID: userID, Text: text})
	if f.fail {
		return errors.New("forbidden: bot was blocked by the user")
	}
	return nil
}

func (f *fakeSender) SendAlbum(userID int64, photos []string, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.albums++
	if f.fail {
		return errors.New("forbidden: bot was blocked by the user")
	}
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection only: every pooled connection would otherwise get
	// its own empty in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	s := store.New(db)
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func newTestScheduler(t *testing.T, st *store.Store, sender Sender) *Scheduler {
	t.Helper()
	s := NewScheduler(st, sender, DefaultCatalog(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SendDelay = 0
	return s
}

func backdate(t *testing.T, st *store.Store, id int64, age time.Duration) {
	t.Helper()
	err := st.DB.Model(&model.User{}).Where("id = ?", id).
		UpdateColumn("current_step_changed_at", time.Now().Add(-age)).Error
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func TestSchedulerLevel1AtMostOnce(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{}
	sched := newTestScheduler(t, st, sender)

	st.GetOrCreate(1, "", "Иван", "")
	backdate(t, st, 1, 10*time.Minute)

	sched.Tick()
	if sender.count() != 1 {
		t.Fatalf("sends after first tick = %d, want 1", sender.count())
	}
	user, _ := st.Get(1)
	if !user.ReminderL1Start {
		t.Fatal("level 1 flag not set")
	}

	// Overlapping or repeated ticks must not re-send.
	sched.Tick()
	sched.Tick()
	if sender.count() != 1 {
		t.Errorf("sends after repeated ticks = %d, want 1", sender.count())
	}
}

func TestSchedulerBelowThresholdNotSent(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{}
	sched := newTestScheduler(t, st, sender)

	st.GetOrCreate(1, "", "Иван", "")
	backdate(t, st, 1, 2*time.Minute)

	sched.Tick()
	if sender.count() != 0 {
		t.Errorf("user under 5m threshold got %d sends", sender.count())
	}
}

func TestSchedulerMonotonicEscalation(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{}
	sched := newTestScheduler(t, st, sender)

	st.GetOrCreate(1, "", "Иван", "")
	backdate(t, st, 1, 2*time.Hour) // past L1 and L2, short of L3

	sched.Tick()
	user, _ := st.Get(1)
	if !user.ReminderL1Start || !user.ReminderL2Start {
		t.Fatalf("expected L1 and L2 flags, got %+v", user)
	}
	if user.ReminderL3Start {
		t.Fatal("L3 fired before its 24h threshold")
	}
	if sender.count() != 2 {
		t.Errorf("sends = %d, want 2", sender.count())
	}
	// L1 copy went out before L2 copy.
	if !strings.Contains(sender.messages[0].Text, "все в порядке") {
		t.Errorf("first message is not level 1 copy: %q", sender.messages[0].Text)
	}
	if !strings.Contains(sender.messages[1].Text, "73%") {
		t.Errorf("second message is not level 2 copy: %q", sender.messages[1].Text)
	}
}

func TestSchedulerFlagSetEvenWhenSendFails(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{fail: true}
	sched := newTestScheduler(t, st, sender)

	st.GetOrCreate(1, "", "Иван", "")
	backdate(t, st, 1, 10*time.Minute)

	sched.Tick()
	if sender.count() != 1 {
		t.Fatalf("attempts = %d, want 1", sender.count())
	}
	user, _ := st.Get(1)
	if !user.ReminderL1Start {
		t.Fatal("flag must be set after a failed attempt, blocked users are not retried")
	}

	sched.Tick()
	if sender.count() != 1 {
		t.Error("failed send was retried")
	}
}

func TestSchedulerPersonalizesCopy(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{}
	sched := newTestScheduler(t, st, sender)

	st.GetOrCreate(1, "", "Анна", "")
	backdate(t, st, 1, 10*time.Minute)

	sched.Tick()
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
	text := sender.messages[0].Text
	if !strings.HasPrefix(text, "Анна") {
		t.Errorf("name not interpolated: %q", text)
	}
	if !strings.Contains(text, "запустила") || strings.Contains(text, "(а/)") {
		t.Errorf("gender markers not resolved: %q", text)
	}
}

// The end-to-end scenario: a user reminded on start moves to video1;
// the start timers must never fire again and the video1 timers count
// from the new step change.
func TestSchedulerStepChangeResetsTimers(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{}
	sched := newTestScheduler(t, st, sender)

	st.GetOrCreate(1, "", "Иван", "")
	backdate(t, st, 1, 6*time.Minute)

	sched.Tick()
	if sender.count() != 1 {
		t.Fatalf("start L1 not sent")
	}

	// User clicks through before the L2 threshold elapses.
	if err := st.Transition(1, model.StepVideo1); err != nil {
		t.Fatal(err)
	}

	sched.Tick()
	if sender.count() != 1 {
		t.Fatal("no reminder should fire right after the transition")
	}

	// video1 counts from the new CurrentStepChangedAt.
	backdate(t, st, 1, 6*time.Minute)
	sched.Tick()
	if sender.count() != 2 {
		t.Fatalf("video1 L1 should fire, sends = %d", sender.count())
	}
	user, _ := st.Get(1)
	if user.ReminderL2Start || user.ReminderL3Start {
		t.Error("start escalation continued after the user left the step")
	}
	if !user.ReminderL1Video1 {
		t.Error("video1 L1 flag not set")
	}
}

func TestSchedulerIgnoresPaidUsers(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{}
	sched := newTestScheduler(t, st, sender)

	st.GetOrCreate(1, "", "Иван", "")
	backdate(t, st, 1, 10*time.Minute)
	st.MarkPaid(1)

	sched.Tick()
	if sender.count() != 0 {
		t.Errorf("paid user received %d reminders", sender.count())
	}
}

func TestWarmupTwoEarliestStepsOnly(t *testing.T) {
	st := newTestStore(t)
	sender := &fakeSender{}
	w := NewWarmup(st, sender, DefaultCatalog(), []string{"photo1", "photo2"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.SendDelay = 0

	st.GetOrCreate(1, "", "Иван", "")
	st.GetOrCreate(2, "", "Анна", "")
	st.GetOrCreate(3, "", "Петр", "")
	st.Transition(2, model.StepVideo1)
	st.Transition(3, model.StepVideo2)
	for _, id := range []int64{1, 2, 3} {
		backdate(t, st, id, 20*time.Minute)
	}

	w.Tick()

	// Album plus follow-up message per warmed user; video2 untouched.
	if sender.albums != 2 {
		t.Errorf("albums = %d, want 2", sender.albums)
	}
	if sender.count() != 2 {
		t.Errorf("follow-up messages = %d, want 2", sender.count())
	}
	u1, _ := st.Get(1)
	u2, _ := st.Get(2)
	u3, _ := st.Get(3)
	if !u1.WarmupStartSent || !u2.WarmupVideo1Sent {
		t.Error("warmup flags not set")
	}
	if u3.WarmupStartSent || u3.WarmupVideo1Sent {
		t.Error("video2 user must not be warmed")
	}

	w.Tick()
	if sender.albums != 2 || sender.count() != 2 {
		t.Error("warmup re-sent on second tick")
	}
}

func TestCatalogOverride(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/reminders.yaml"
	override := `
reminders:
  start:
    1:
      text: "{name}, вернись!"
      buttons:
        - text: "Ок"
          unique: "want"
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	msg, ok := catalog.Reminder(model.StepStart, 1)
	if !ok || msg.Text != "{name}, вернись!" {
		t.Errorf("override not applied: %+v", msg)
	}
	// Untouched entries keep their defaults.
	msg, ok = catalog.Reminder(model.StepStart, 2)
	if !ok || !strings.Contains(msg.Text, "73%") {
		t.Errorf("default lost after override: %+v", msg)
	}
	if _, ok := catalog.WarmupMessage(model.StepVideo1); !ok {
		t.Error("warmup defaults lost after override")
	}
}
