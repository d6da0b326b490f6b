package reminder

import (
	"fmt"
	"os"

	"reels-funnel-bot/model"

	"gopkg.in/yaml.v3"
)

// Button on a reminder message: either a callback routed back into the
// funnel handlers (Unique) or an external link (URL).
type Button struct {
	Text   string `yaml:"text"`
	Unique string `yaml:"unique,omitempty"`
	URL    string `yaml:"url,omitempty"`
}

type Message struct {
	Text    string   `yaml:"text"`
	Buttons []Button `yaml:"buttons,omitempty"`
}

// Catalog holds the pre-authored reminder copy per (step, level) and
// the warmup copy per step. Defaults ship in code; a YAML file can
// override individual entries.
type Catalog struct {
	Reminders map[model.Step]map[int]Message `yaml:"reminders"`
	Warmup    map[model.Step]Message         `yaml:"warmup"`
}

func (c *Catalog) Reminder(step model.Step, level int) (Message, bool) {
	levels, ok := c.Reminders[step]
	if !ok {
		return Message{}, false
	}
	msg, ok := levels[level]
	return msg, ok
}

func (c *Catalog) WarmupMessage(step model.Step) (Message, bool) {
	msg, ok := c.Warmup[step]
	return msg, ok
}

// LoadCatalog merges a YAML override file over the defaults. Entries
// present in the file replace the default for that (step, level) only.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for step, levels := range override.Reminders {
		if catalog.Reminders[step] == nil {
			catalog.Reminders[step] = make(map[int]Message)
		}
		for level, msg := range levels {
			catalog.Reminders[step][level] = msg
		}
	}
	for step, msg := range override.Warmup {
		catalog.Warmup[step] = msg
	}
	return catalog, nil
}

var (
	btnContinue = Button{Text: "▶️ Продолжить", Unique: "want"}
	btnWatch    = Button{Text: "🎬 Смотреть видео", Unique: "want"}
	btnSkipPay  = Button{Text: "✨ Хочу!", Unique: "skip_to_payment"}
	btnAssist   = Button{Text: "💬 Написать ассистенту", URL: "https://t.me/vetalsmirnov"}
)

func DefaultCatalog() *Catalog {
	return &Catalog{
		Reminders: map[model.Step]map[int]Message{
			model.StepStart: {
				1: {
					Text: `{name}, все в порядке? 😊

Видел(а/), что ты запустил(а/) бота, но остановился(ась/).
Понимаю — иногда отвлекаемся на другие дела.

Если интересно посмотреть как я заработал(а/) $15,000 через рилс —
просто нажми кнопку ниже 👇`,
					Buttons: []Button{btnContinue},
				},
				2: {
					Text: `{name}, 73% моих клиентов говорят что пожалели только об одном —
что не начали раньше 😅

У тебя всё ещё есть шанс попасть в закрытый чат,
где уже 110+ человек делятся своими результатами в рилс.

Видео займёт 2 минуты, либо ты можешь их проматывать.`,
					Buttons: []Button{btnWatch},
				},
				3: {
					Text: `{name}, последний раз напоминаю — обещаю не спамить 🙌

Если сейчас не время — всё ок, возвращайся когда будешь готов(а/).

Но если хочешь узнать систему которая принесла мне $15k —
я здесь, чтобы помочь.`,
					Buttons: []Button{btnAssist, {Text: "▶️ Посмотреть видео", Unique: "want"}},
				},
			},
			model.StepVideo1: {
				1: {
					Text:    `Нет времени смотреть видео? Понимаю, я тоже все время на бегу. Хочешь я просто сразу дам тебе ссылку на платный канал со всеми моими инструментами и инструкцией как пользоваться?`,
					Buttons: []Button{btnSkipPay},
				},
				2: {
					Text: `{name}, первое видео — самое важное. Там я показываю откуда вообще берутся деньги в рилс.

Если совсем некогда — можешь пропустить видео и сразу перейти к оплате 👇`,
					Buttons: []Button{btnSkipPay},
				},
				3: {
					Text: `{name}, я не буду больше напоминать про видео 🙌

Если появятся вопросы — ассистент всегда на связи.`,
					Buttons: []Button{btnAssist},
				},
			},
			model.StepVideo2: {
				1: {
					Text:    `{name}, осталось всего два коротких видео до закрытого канала. Продолжим?`,
					Buttons: []Button{{Text: "▶️ Продолжить", Unique: "next_video3"}},
				},
				2: {
					Text: `{name}, ты уже видел(а/) половину системы. Остальное — инструменты, которые делают всю работу за тебя.

Не хочешь досматривать — просто переходи к оплате 👇`,
					Buttons: []Button{btnSkipPay},
				},
				3: {
					Text: `{name}, это последнее напоминание про видео — обещаю 🙌

Вернуться можно в любой момент, всё сохранится.`,
					Buttons: []Button{btnAssist},
				},
			},
			model.StepVideo3: {
				1: {
					Text:    `{name}, последнее видео — результаты учеников. После него откроется доступ к оплате.`,
					Buttons: []Button{{Text: "💎 Получить доступ", Unique: "to_payment"}},
				},
				2: {
					Text:    `{name}, ты в одном шаге от закрытого канала. Можешь не досматривать — просто жми кнопку 👇`,
					Buttons: []Button{btnSkipPay},
				},
				3: {
					Text:    `{name}, держу место в закрытом чате ещё 24 часа. Если будут вопросы — пиши ассистенту.`,
					Buttons: []Button{btnAssist},
				},
			},
		},
		Warmup: map[model.Step]Message{
			model.StepStart: {
				Text: `{name}, 90% застревают именно на этом шаге. А те кто прошел дальше уже вчера попали в наш чат и уже сняли свои первые 10 рилс в тот же день. Ты тоже в шаге от того чтобы получить мои инструменты которые принесли мне 15 000$ через рилс.

Если не хочешь смотреть видео о продукте, можешь просто пропустить этот шаг и перейти к оплате.`,
				Buttons: []Button{btnSkipPay},
			},
			model.StepVideo1: {
				Text: `{name}, 90% застревают именно на этом шаге. А те кто прошел дальше уже вчера попали в наш чат и пишут вот такие отзывы в восторге. Ты тоже в шаге от того чтобы получить мои инструменты которые принесли мне 15 000$ через рилс.

Если не хочешь смотреть видео о продукте, можешь просто пропустить этот шаг и перейти к оплате.`,
				Buttons: []Button{btnSkipPay},
			},
		},
	}
}
