package receipt

import (
	"strings"
	"testing"

	"reels-funnel-bot/model"
)

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

func goodAnalysis() Analysis {
	return Analysis{
		IsReceipt:  boolPtr(true),
		Amount:     floatPtr(2000),
		CardNumber: "3993",
		Confidence: 90,
	}
}

func TestEvaluateValid(t *testing.T) {
	v := Evaluate(goodAnalysis(), 2000, "2200 7009 1234 3993", model.CurrencyRUB)
	if !v.IsValid {
		t.Fatalf("expected valid, got reason %q", v.Reason)
	}
	if !v.IsReceipt || v.Confidence != 90 {
		t.Errorf("verdict fields not carried: %+v", v)
	}
}

func TestEvaluateFraudShortCircuitsAmount(t *testing.T) {
	// Correct amount and card, but fraud flag set: the verdict must cite
	// fraud, never an amount mismatch.
	a := goodAnalysis()
	a.IsFraud = true
	a.Reason = "следы редактирования"
	v := Evaluate(a, 2000, "3993", model.CurrencyRUB)
	if v.IsValid {
		t.Fatal("expected invalid")
	}
	if !strings.Contains(v.Reason, "мошенничества") {
		t.Errorf("expected fraud reason, got %q", v.Reason)
	}
	if !strings.Contains(v.Reason, "следы редактирования") {
		t.Errorf("expected classifier details in reason, got %q", v.Reason)
	}
}

func TestEvaluateNotAReceipt(t *testing.T) {
	a := goodAnalysis()
	a.IsReceipt = boolPtr(false)
	a.ImageDescription = "фотография кота"
	v := Evaluate(a, 2000, "3993", model.CurrencyRUB)
	if v.IsValid || v.IsReceipt {
		t.Fatalf("expected not-a-receipt verdict, got %+v", v)
	}
	if !strings.Contains(v.Reason, "фотография кота") {
		t.Errorf("expected description in reason, got %q", v.Reason)
	}
}

func TestEvaluateAmountToleranceBoundary(t *testing.T) {
	a := goodAnalysis()
	a.Amount = floatPtr(1990) // diff = 10, inclusive boundary
	if v := Evaluate(a, 2000, "3993", model.CurrencyRUB); !v.IsValid {
		t.Errorf("diff of exactly 10 should pass, got reason %q", v.Reason)
	}

	a.Amount = floatPtr(1989)
	v := Evaluate(a, 2000, "3993", model.CurrencyRUB)
	if v.IsValid {
		t.Fatal("diff of 11 should fail")
	}
	if !strings.Contains(v.Reason, "2000") || !strings.Contains(v.Reason, "1989") {
		t.Errorf("expected both amounts in reason, got %q", v.Reason)
	}
}

func TestEvaluateAmountMissing(t *testing.T) {
	a := goodAnalysis()
	a.Amount = nil
	v := Evaluate(a, 2000, "3993", model.CurrencyRUB)
	if v.IsValid || !strings.Contains(v.Reason, "сумму") {
		t.Errorf("expected amount-unreadable rejection, got %+v", v)
	}
}

func TestEvaluateCardLast4(t *testing.T) {
	a := goodAnalysis()
	a.CardNumber = "0000003993" // only the last 4 digits matter
	if v := Evaluate(a, 2000, "2200 7009 1234 3993", model.CurrencyRUB); !v.IsValid {
		t.Errorf("expected valid, got reason %q", v.Reason)
	}

	a.CardNumber = "1234"
	v := Evaluate(a, 2000, "2200 7009 1234 3993", model.CurrencyRUB)
	if v.IsValid {
		t.Fatal("expected card mismatch")
	}
	if !strings.Contains(v.Reason, "3993") || !strings.Contains(v.Reason, "1234") {
		t.Errorf("expected both suffixes in reason, got %q", v.Reason)
	}
}

func TestEvaluateCardAsNumber(t *testing.T) {
	a := goodAnalysis()
	a.CardNumber = float64(3993) // classifier sometimes returns a bare number
	if v := Evaluate(a, 2000, "3993", model.CurrencyRUB); !v.IsValid {
		t.Errorf("expected valid, got reason %q", v.Reason)
	}
}

func TestEvaluateCardMissing(t *testing.T) {
	a := goodAnalysis()
	a.CardNumber = nil
	v := Evaluate(a, 2000, "3993", model.CurrencyRUB)
	if v.IsValid || !strings.Contains(v.Reason, "номер карты") {
		t.Errorf("expected card-unreadable rejection, got %+v", v)
	}
}

func TestEvaluateConfidenceFloor(t *testing.T) {
	a := goodAnalysis()
	a.Confidence = 59
	if v := Evaluate(a, 2000, "3993", model.CurrencyRUB); v.IsValid {
		t.Fatal("confidence 59 should fail")
	}
	a.Confidence = 60
	if v := Evaluate(a, 2000, "3993", model.CurrencyRUB); !v.IsValid {
		t.Errorf("confidence 60 should pass, got reason %q", v.Reason)
	}
}

func TestExtractJSONFromCodeFence(t *testing.T) {
	text := "Вот результат:\n```json\n{\"isReceipt\": true, \"amount\": 2000}\n```\nконец"
	got := extractJSON(text)
	if got != `{"isReceipt": true, "amount": 2000}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONFromPlainText(t *testing.T) {
	text := `Анализ завершен. {"amount": 2000, "reason": "скобка } в строке"} готово`
	got := extractJSON(text)
	if got != `{"amount": 2000, "reason": "скобка } в строке"}` {
		t.Errorf("brace scan must respect strings, got %q", got)
	}
}

func TestExtractJSONNone(t *testing.T) {
	if got := extractJSON("никакого json здесь нет"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
