package reminder

import (
	"log/slog"
	"time"

	"reels-funnel-bot/model"
	"reels-funnel-bot/store"
)

// Warmup steps: the two earliest funnel steps only.
var warmupSteps = []model.Step{model.StepStart, model.StepVideo1}

const DefaultWarmupThreshold = 10 * time.Minute

// Warmup is the secondary nudge scheduler: a single escalation level on
// the two earliest steps, driven on a two-minute cadence. It sends a
// social-proof photo album followed by the scripted message.
type Warmup struct {
	Store     *store.Store
	Sender    Sender
	Catalog   *Catalog
	Log       *slog.Logger
	Threshold time.Duration
	Photos    []string // screenshot refs for the album, may be empty
	SendDelay time.Duration
}

func NewWarmup(st *store.Store, sender Sender, catalog *Catalog, photos []string, log *slog.Logger) *Warmup {
	return &Warmup{
		Store:     st,
		Sender:    sender,
		Catalog:   catalog,
		Log:       log,
		Threshold: DefaultWarmupThreshold,
		Photos:    photos,
		SendDelay: 50 * time.Millisecond,
	}
}

func (w *Warmup) Tick() {
	for _, step := range warmupSteps {
		w.runStep(step)
	}
}

func (w *Warmup) runStep(step model.Step) {
	users, err := w.Store.DueForWarmup(step, w.Threshold)
	if err != nil {
		w.Log.Error("warmup selection failed", "step", step, "error", err)
		return
	}
	if len(users) == 0 {
		return
	}

	msg, ok := w.Catalog.WarmupMessage(step)
	if !ok {
		w.Log.Warn("no warmup copy for step", "step", step)
		return
	}

	w.Log.Info("sending warmup", "step", step, "users", len(users))

	for _, user := range users {
		if err := w.send(user, msg); err != nil {
			w.Log.Warn("warmup send failed", "user", user.ID, "step", step, "error", err)
		}
		// Same policy as escalation: flag after attempt, success or not.
		if err := w.Store.MarkWarmupSent(user.ID, step); err != nil {
			w.Log.Error("warmup flag not persisted", "user", user.ID, "step", step, "error", err)
		}
		if w.SendDelay > 0 {
			time.Sleep(w.SendDelay)
		}
	}
}

func (w *Warmup) send(user model.User, msg Message) error {
	text := renderText(msg.Text, user)
	if len(w.Photos) > 0 {
		if err := w.Sender.SendAlbum(user.ID, w.Photos, text); err != nil {
			return err
		}
		return w.Sender.SendMessage(user.ID, "💳 Выбери способ оплаты:", msg.Buttons)
	}
	return w.Sender.SendMessage(user.ID, text, msg.Buttons)
}
