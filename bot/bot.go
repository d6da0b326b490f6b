package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"reels-funnel-bot/model"
	"reels-funnel-bot/receipt"
	"reels-funnel-bot/store"

	"gopkg.in/telebot.v3"
)

// PaymentOption is the card-transfer offer for one currency.
type PaymentOption struct {
	Amount int
	Card   string
	Symbol string
}

type Config struct {
	ChannelID    int64
	AssistantURL string
	Videos       [3]string // file_id or URL per funnel video
	Payments     map[model.Currency]PaymentOption
	InviteTTL    time.Duration
}

// ReceiptChecker is the receipt classification gate. Satisfied by
// *receipt.Validator; tests substitute a fake.
type ReceiptChecker interface {
	Check(ctx context.Context, imageURL string, expectedAmount int, expectedCard string, currency model.Currency) (receipt.Verdict, error)
}

type Bot struct {
	B        *telebot.Bot
	Store    *store.Store
	Receipts ReceiptChecker
	Cfg      Config
	Log      *slog.Logger

	// Session cache of funnel steps. Strictly a cache: absence (e.g.
	// after restart) is reconstructed from the store, never an error.
	steps map[int64]model.Step
	mu    sync.RWMutex
}

func New(token string, st *store.Store, receipts ReceiptChecker, cfg Config, log *slog.Logger) (*Bot, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		B:        b,
		Store:    st,
		Receipts: receipts,
		Cfg:      cfg,
		Log:      log,
		steps:    make(map[int64]model.Step),
	}
	bot.registerHandlers()
	return bot, nil
}

func (bot *Bot) Start() {
	bot.B.Start()
}

func (bot *Bot) Stop() {
	bot.B.Stop()
}

func (bot *Bot) registerHandlers() {
	bot.B.Handle("/start", bot.handleStart)
	bot.B.Handle("/status", bot.handleStatus)

	bot.B.Handle(&btnWant, bot.handleWant)
	bot.B.Handle(&btnNextV2, bot.handleNextVideo2)
	bot.B.Handle(&btnNextV3, bot.handleNextVideo3)
	bot.B.Handle(&btnToPayment, bot.handleToPayment)
	bot.B.Handle(&btnSkipToPay, bot.handleToPayment)
	bot.B.Handle(&btnCurRUB, bot.handleCurrency)
	bot.B.Handle(&btnCurUAH, bot.handleCurrency)
	bot.B.Handle(&btnCurEUR, bot.handleCurrency)

	bot.B.Handle(telebot.OnPhoto, bot.handlePhoto)
}

// --- session cache ---

func (bot *Bot) cachedStep(userID int64) (model.Step, bool) {
	bot.mu.RLock()
	defer bot.mu.RUnlock()
	step, ok := bot.steps[userID]
	return step, ok
}

func (bot *Bot) setCachedStep(userID int64, step model.Step) {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	bot.steps[userID] = step
}

// currentStep answers from the cache, falling back to the store.
func (bot *Bot) currentStep(userID int64) (model.Step, bool) {
	if step, ok := bot.cachedStep(userID); ok {
		return step, true
	}
	user, err := bot.Store.Get(userID)
	if err != nil {
		return "", false
	}
	bot.setCachedStep(userID, user.CurrentStep)
	return user.CurrentStep, true
}

// transition persists the step change and updates the cache. A store
// failure is logged and swallowed: the funnel keeps going on in-memory
// state for this turn.
func (bot *Bot) transition(userID int64, step model.Step) {
	if err := bot.Store.Transition(userID, step); err != nil {
		bot.Log.Error("step transition not persisted", "user", userID, "step", step, "error", err)
	}
	bot.setCachedStep(userID, step)
}

func (bot *Bot) logAction(userID int64, action string, step model.Step, metadata map[string]any) {
	if err := bot.Store.LogAction(userID, action, step, metadata); err != nil {
		bot.Log.Error("action not logged", "user", userID, "action", action, "error", err)
	}
}

// --- handlers ---

func (bot *Bot) handleStart(c telebot.Context) error {
	sender := c.Sender()
	bot.restartFunnel(sender)

	menu := &telebot.ReplyMarkup{}
	menu.Inline(menu.Row(btnWant))
	return c.Send(Personalize(msgWelcome, DetectGender(sender.FirstName)), menu)
}

// restartFunnel registers the user and puts them back on the first
// step. /start always restarts, and the store moves with the cache so a
// returning user's persisted step never disagrees with the session.
func (bot *Bot) restartFunnel(sender *telebot.User) {
	if _, err := bot.Store.GetOrCreate(sender.ID, sender.Username, sender.FirstName, sender.LastName); err != nil {
		bot.Log.Error("user record not created", "user", sender.ID, "error", err)
	}
	bot.transition(sender.ID, model.StepStart)
	bot.logAction(sender.ID, "bot_start", model.StepStart, nil)
}

func (bot *Bot) handleWant(c telebot.Context) error {
	c.Respond()
	bot.transition(c.Sender().ID, model.StepVideo1)
	bot.logAction(c.Sender().ID, "want_clicked", model.StepVideo1, nil)
	return bot.sendFunnelVideo(c, 0, msgVideo1Caption, btnNextV2)
}

func (bot *Bot) handleNextVideo2(c telebot.Context) error {
	c.Respond()
	bot.transition(c.Sender().ID, model.StepVideo2)
	bot.logAction(c.Sender().ID, "video2_requested", model.StepVideo2, nil)
	return bot.sendFunnelVideo(c, 1, msgVideo2Caption, btnNextV3)
}

func (bot *Bot) handleNextVideo3(c telebot.Context) error {
	c.Respond()
	bot.transition(c.Sender().ID, model.StepVideo3)
	bot.logAction(c.Sender().ID, "video3_requested", model.StepVideo3, nil)
	return bot.sendFunnelVideo(c, 2, msgVideo3Caption, btnToPayment)
}

func (bot *Bot) sendFunnelVideo(c telebot.Context, index int, caption string, next telebot.Btn) error {
	menu := &telebot.ReplyMarkup{}
	menu.Inline(menu.Row(next))

	video := &telebot.Video{File: fileRef(bot.Cfg.Videos[index]), Caption: caption}
	if err := c.Send(video, menu); err != nil {
		bot.Log.Error("video send failed", "user", c.Sender().ID, "index", index, "error", err)
		return c.Send(msgGenericError)
	}
	return nil
}

// handleToPayment shows the payment-method choice. Also the target of
// the reminder escape button, so it accepts users from any step.
func (bot *Bot) handleToPayment(c telebot.Context) error {
	c.Respond()
	userID := c.Sender().ID
	bot.transition(userID, model.StepPaymentChoice)
	bot.logAction(userID, "payment_choice_shown", model.StepPaymentChoice, nil)

	menu := &telebot.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnCurRUB, btnCurUAH),
		menu.Row(btnCurEUR),
	)
	return c.Send(Personalize(msgPaymentChoice, DetectGender(c.Sender().FirstName)), menu)
}

func (bot *Bot) handleCurrency(c telebot.Context) error {
	c.Respond()
	userID := c.Sender().ID
	currency := model.Currency(strings.TrimSpace(c.Callback().Data))

	if err := bot.Store.SetCurrency(userID, currency); err != nil {
		bot.Log.Error("currency not persisted", "user", userID, "currency", currency, "error", err)
	}
	bot.logAction(userID, "currency_chosen", model.StepPaymentChoice, map[string]any{"currency": currency})

	if currency == model.CurrencyEUR {
		// EUR runs through the assistant, no receipt flow.
		text, menu := assistantMessage(bot.Cfg.AssistantURL)
		return c.Send(text, menu)
	}

	opt, ok := bot.Cfg.Payments[currency]
	if !ok {
		return c.Send(msgGenericError)
	}

	bot.transition(userID, model.StepWaitingReceipt)
	return c.Send(paymentRequisites(opt.Amount, opt.Symbol, opt.Card), telebot.ModeMarkdownV2)
}

func (bot *Bot) handlePhoto(c telebot.Context) error {
	userID := c.Sender().ID

	step, ok := bot.currentStep(userID)
	if !ok || step != model.StepWaitingReceipt {
		return c.Send(msgPhotoUnexpected)
	}

	user, err := bot.Store.Get(userID)
	if err != nil {
		bot.Log.Error("user load failed on receipt upload", "user", userID, "error", err)
		return c.Send(msgGenericError)
	}
	opt, ok := bot.Cfg.Payments[user.Currency]
	if !ok {
		return c.Send(msgGenericError)
	}

	photo := c.Message().Photo
	if photo == nil {
		return c.Send(msgPhotoUnexpected)
	}
	file, err := bot.B.FileByID(photo.FileID)
	if err != nil {
		bot.Log.Error("photo file lookup failed", "user", userID, "error", err)
		return c.Send(msgReceiptRetry)
	}
	imageURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", bot.B.Token, file.FilePath)

	c.Send(msgReceiptChecking)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	verdict, err := bot.Receipts.Check(ctx, imageURL, opt.Amount, opt.Card, user.Currency)
	if err != nil {
		// Transport or parse failure: state unchanged, user retries.
		bot.Log.Warn("receipt classification failed", "user", userID, "error", err)
		bot.logAction(userID, "receipt_check_error", model.StepWaitingReceipt, map[string]any{"error": err.Error()})
		return c.Send(msgReceiptRetry)
	}

	if !verdict.IsValid {
		action := "receipt_rejected"
		if !verdict.IsReceipt {
			action = "receipt_not_a_receipt"
		}
		bot.logAction(userID, action, model.StepWaitingReceipt, map[string]any{
			"reason":     verdict.Reason,
			"confidence": verdict.Confidence,
		})
		return c.Send(verdict.Reason)
	}

	c.Send(msgReceiptAccepted)
	return bot.grantAccess(c, user, verdict)
}

// grantAccess creates a single-use invite link, marks the user paid and
// delivers the link.
func (bot *Bot) grantAccess(c telebot.Context, user *model.User, verdict receipt.Verdict) error {
	userID := user.ID
	link, err := bot.B.CreateInviteLink(&telebot.Chat{ID: bot.Cfg.ChannelID}, &telebot.ChatInviteLink{
		Name:           fmt.Sprintf("user-%d", userID),
		ExpireUnixtime: time.Now().Add(bot.Cfg.InviteTTL).Unix(),
		MemberLimit:    1,
	})
	if err != nil {
		bot.Log.Error("invite link creation failed", "user", userID, "error", err)
		return c.Send(msgGenericError)
	}

	if err := bot.Store.MarkPaid(userID); err != nil {
		bot.Log.Error("paid mark not persisted", "user", userID, "error", err)
	}
	bot.setCachedStep(userID, model.StepCompleted)
	bot.logAction(userID, "payment_confirmed", model.StepCompleted, map[string]any{
		"currency":   user.Currency,
		"amount":     verdict.ExtractedAmount,
		"confidence": verdict.Confidence,
	})

	return c.Send(inviteMessage(link.InviteLink))
}

// handleStatus reports paid-channel membership for users who finished
// the funnel.
func (bot *Bot) handleStatus(c telebot.Context) error {
	userID := c.Sender().ID
	user, err := bot.Store.Get(userID)
	if err != nil || !user.HasPaid {
		return c.Send(msgNotPaidStatus)
	}

	member, err := bot.B.ChatMemberOf(&telebot.Chat{ID: bot.Cfg.ChannelID}, c.Sender())
	if err != nil {
		bot.Log.Warn("chat member lookup failed", "user", userID, "error", err)
		return c.Send(msgGenericError)
	}
	if member.Role == telebot.Left || member.Role == telebot.Kicked {
		return c.Send("Похоже, ты ещё не вступил в канал. Напиши ассистенту, если ссылка не работает.")
	}
	return c.Send("✅ Доступ активен, ты в канале.")
}

// fileRef resolves a configured video reference: URLs are fetched by
// Telegram, anything else is treated as a file_id.
func fileRef(ref string) telebot.File {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return telebot.FromURL(ref)
	}
	return telebot.File{FileID: ref}
}
