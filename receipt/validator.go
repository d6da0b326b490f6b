package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"reels-funnel-bot/model"
	"reels-funnel-bot/vision"

	"github.com/google/uuid"
)

// Amount may differ from the expected value by this many currency units
// (bank fees, rounding). Boundary inclusive: a diff of exactly 10 passes.
const amountTolerance = 10

// Classifier answers below this confidence are rejected as unreadable.
const confidenceFloor = 60

// Verdict is the outcome of one classification call. Transient: only
// its effect (a step transition and an action log entry) persists.
type Verdict struct {
	IsValid         bool
	IsReceipt       bool
	Confidence      int
	ExtractedAmount *float64
	ExtractedCard   string
	Reason          string
}

// Analysis is the JSON object the classifier is asked to produce.
type Analysis struct {
	ImageDescription string   `json:"imageDescription"`
	IsReceipt        *bool    `json:"isReceipt"`
	Amount           *float64 `json:"amount"`
	CardNumber       any      `json:"cardNumber"`
	IsFraud          bool     `json:"isFraud"`
	Confidence       int      `json:"confidence"`
	Reason           string   `json:"reason"`
}

type Validator struct {
	Vision     vision.Client
	HTTPClient *http.Client
	Log        *slog.Logger
}

func NewValidator(client vision.Client, log *slog.Logger) *Validator {
	return &Validator{
		Vision:     client,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Log:        log,
	}
}

// Check downloads the uploaded image, runs the external classifier and
// applies the deterministic rule chain. A non-nil error means transport
// or parse failure: the caller re-prompts the user for another photo.
func (v *Validator) Check(ctx context.Context, imageURL string, expectedAmount int, expectedCard string, currency model.Currency) (Verdict, error) {
	checkID := uuid.NewString()
	v.Log.Info("receipt check started", "check_id", checkID, "expected_amount", expectedAmount, "currency", currency)

	image, err := v.download(ctx, imageURL)
	if err != nil {
		return Verdict{}, fmt.Errorf("download image: %w", err)
	}

	raw, err := v.Vision.Analyze(ctx, image, buildPrompt(expectedAmount, expectedCard, currency))
	if err != nil {
		return Verdict{}, fmt.Errorf("classify image: %w", err)
	}

	obj := extractJSON(raw)
	if obj == "" {
		return Verdict{}, fmt.Errorf("no JSON object in classifier response")
	}
	var analysis Analysis
	if err := json.Unmarshal([]byte(obj), &analysis); err != nil {
		return Verdict{}, fmt.Errorf("parse classifier response: %w", err)
	}

	verdict := Evaluate(analysis, expectedAmount, expectedCard, currency)
	v.Log.Info("receipt check finished",
		"check_id", checkID, "valid", verdict.IsValid,
		"confidence", verdict.Confidence, "reason", verdict.Reason)
	return verdict, nil
}

func (v *Validator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Evaluate applies the accept/reject rules in order; the first failing
// rule wins. Fraud and unreadable-field checks run before the numeric
// and string comparisons, so a fraudulent receipt with a correct amount
// is still rejected as fraud.
func Evaluate(a Analysis, expectedAmount int, expectedCard string, currency model.Currency) Verdict {
	symbol := currencySymbol(currency)

	if a.IsReceipt != nil && !*a.IsReceipt {
		description := a.ImageDescription
		if description == "" {
			description = "изображение не является квитанцией"
		}
		return Verdict{
			IsReceipt: false,
			Reason:    fmt.Sprintf("❌ Это не платежная квитанция.\n\n🔍 Что я вижу на фото:\n%s", description),
		}
	}

	if a.IsFraud {
		details := a.Reason
		if details == "" {
			details = "Обнаружены визуальные признаки подделки"
		}
		return Verdict{
			IsReceipt:  true,
			Confidence: a.Confidence,
			Reason:     fmt.Sprintf("⚠️ Обнаружены признаки мошенничества или подделки квитанции!\n\n🔍 Детали:\n%s", details),
		}
	}

	if a.Amount == nil {
		return Verdict{
			IsReceipt:  true,
			Confidence: a.Confidence,
			Reason:     "❌ Не удалось распознать сумму платежа.\n\nПожалуйста, убедитесь, что сумма перевода четко видна на квитанции.",
		}
	}

	if math.Abs(*a.Amount-float64(expectedAmount)) > amountTolerance {
		return Verdict{
			IsReceipt:       true,
			Confidence:      a.Confidence,
			ExtractedAmount: a.Amount,
			Reason: fmt.Sprintf("❌ Неверная сумма платежа.\n\n💰 Ожидается: %d %s\n💳 Найдено на квитанции: %.0f %s",
				expectedAmount, symbol, *a.Amount, symbol),
		}
	}

	extractedCard := cardString(a.CardNumber)
	if extractedCard == "" {
		return Verdict{
			IsReceipt:       true,
			Confidence:      a.Confidence,
			ExtractedAmount: a.Amount,
			Reason:          "❌ Не удалось распознать номер карты получателя.\n\nПожалуйста, убедитесь, что номер карты четко виден на квитанции.",
		}
	}

	expectedLast4 := last4(expectedCard)
	extractedLast4 := last4(extractedCard)
	if extractedLast4 != expectedLast4 {
		return Verdict{
			IsReceipt:       true,
			Confidence:      a.Confidence,
			ExtractedAmount: a.Amount,
			ExtractedCard:   extractedCard,
			Reason: fmt.Sprintf("❌ Неверный номер карты получателя.\n\n🎯 Ожидается карта: *%s\n📱 Найдено на квитанции: *%s",
				expectedLast4, extractedLast4),
		}
	}

	if a.Confidence < confidenceFloor {
		return Verdict{
			IsReceipt:       true,
			Confidence:      a.Confidence,
			ExtractedAmount: a.Amount,
			ExtractedCard:   extractedCard,
			Reason:          "Низкое качество квитанции или данные плохо читаются",
		}
	}

	return Verdict{
		IsValid:         true,
		IsReceipt:       true,
		Confidence:      a.Confidence,
		ExtractedAmount: a.Amount,
		ExtractedCard:   extractedCard,
	}
}

// cardString normalizes the classifier's cardNumber field, which comes
// back either as a string or a bare number.
func cardString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// last4 strips separators and returns the final four digits.
func last4(card string) string {
	var digits []rune
	for _, r := range card {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return string(digits)
	}
	return string(digits[len(digits)-4:])
}

func currencySymbol(currency model.Currency) string {
	switch currency {
	case model.CurrencyUAH:
		return "₴"
	case model.CurrencyEUR:
		return "€"
	default:
		return "₽"
	}
}

func buildPrompt(expectedAmount int, expectedCard string, currency model.Currency) string {
	return fmt.Sprintf(`
Проверь платежную квитанцию:

Ожидаю: %d%s на карту *%s

ВАЖНО - ЭТО НОРМАЛЬНО (НЕ мошенничество):
- Скриншот из банка
- Любая дата (даже старая или будущая)
- Разные валюты в одной квитанции (например: перевод в рублях, но валюта зачисления USD - это норма для мультивалютных карт!)
- Любые часовые пояса

МОШЕННИЧЕСТВО только если есть ВИЗУАЛЬНЫЕ признаки:
- Следы фотошопа (артефакты, размытия, нечеткие края)
- Нестандартные шрифты
- Видимые следы редактирования

Верни JSON (ТОЛЬКО JSON, без текста):
{
  "imageDescription": "краткое описание",
  "isReceipt": true/false,
  "amount": число или null,
  "cardNumber": "последние 4 цифры" или null,
  "isFraud": true/false,
  "confidence": 0-100,
  "reason": "детальное описание ВИЗУАЛЬНЫХ признаков подделки" или null
}
`, expectedAmount, currencySymbol(currency), last4(expectedCard))
}
