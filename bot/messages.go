package bot

import (
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"
)

// Inline buttons driving the funnel. Uniques are referenced by the
// reminder catalog too (escape buttons), keep them stable.
var (
	btnWant      = telebot.Btn{Text: "✨ Хочу!", Unique: "want"}
	btnNextV2    = telebot.Btn{Text: "▶️ Продолжить", Unique: "next_video2"}
	btnNextV3    = telebot.Btn{Text: "🔥 Дальше", Unique: "next_video3"}
	btnToPayment = telebot.Btn{Text: "💎 Получить доступ", Unique: "to_payment"}
	btnSkipToPay = telebot.Btn{Text: "✨ Хочу!", Unique: "skip_to_payment"}

	btnCurRUB = telebot.Btn{Text: "🇷🇺 Рубли", Unique: "currency", Data: "RUB"}
	btnCurUAH = telebot.Btn{Text: "🇺🇦 Гривны", Unique: "currency", Data: "UAH"}
	btnCurEUR = telebot.Btn{Text: "💶 Евро", Unique: "currency", Data: "EUR"}
)

const (
	msgWelcome = `Привет! Я заработал(а/) $15,000 через рилс и собрал(а/) все свои инструменты в одну систему.

Сейчас покажу тебе 3 коротких видео о том, как это работает. Готов(а/)?`

	msgVideo1Caption = `📹 Видео 1 из 3

Как я пришёл к системе и первые результаты.`

	msgVideo2Caption = `📹 Видео 2 из 3

Инструменты, которые делают всю работу за тебя.`

	msgVideo3Caption = `📹 Видео 3 из 3

Результаты учеников и что ты получишь внутри.`

	msgPaymentChoice = `✅ Ты посмотрел(а/) все видео!

💎 Чтобы получить доступ к закрытому каналу со всеми инструментами, выбери способ оплаты:`

	msgReceiptChecking = "🔍 Проверяю твою квитанцию..."

	msgReceiptAccepted = "✅ Квитанция принята! Генерирую твою персональную ссылку..."

	msgReceiptRetry = `⚠️ Не получилось проверить квитанцию. Попробуй отправить фото ещё раз — лучше более чёткое.`

	msgPhotoUnexpected = "Пожалуйста, сначала начни с команды /start"

	msgGenericError = "Что-то пошло не так. Попробуй ещё раз или напиши ассистенту."

	msgNotPaidStatus = "Доступ ещё не оплачен. Пройди воронку до конца, чтобы получить ссылку."
)

const paymentRequisitesTpl = `💳 *Реквизиты для оплаты:*

💰 Сумма: *%d %s*
🏦 Номер карты: ` + "`%s`" + `

📋 *Инструкция:*
1\. Переведи указанную сумму на карту
2\. Сделай скриншот или сохрани платежную квитанцию
3\. Отправь квитанцию в этот чат

⚠️ *Важно:* на квитанции должна быть видна сумма перевода и номер карты получателя\!`

func paymentRequisites(amount int, symbol, card string) string {
	return fmt.Sprintf(paymentRequisitesTpl, amount, symbol, escapeMarkdownV2Code(formatCardNumber(card)))
}

func assistantMessage(url string) (string, *telebot.ReplyMarkup) {
	menu := &telebot.ReplyMarkup{}
	menu.Inline(menu.Row(telebot.Btn{Text: "📨 Написать ассистенту", URL: url}))
	return "Оплата в евро проходит через ассистента. Напиши ему, и он всё оформит 👇", menu
}

func inviteMessage(link string) string {
	return fmt.Sprintf(`🎉 Добро пожаловать!

Вот твоя персональная ссылка в закрытый канал (действует 24 часа, одно использование):

%s`, link)
}

// formatCardNumber groups the digits in fours for display.
func formatCardNumber(card string) string {
	digits := strings.ReplaceAll(card, " ", "")
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && i%4 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func escapeMarkdownV2Code(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '`', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
