package bot

import (
	"strings"
)

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// Female name endings checked in order. Male names ending in -а/-я that
// the endings rule would misclassify live in the exception table.
var femaleEndings = []string{"а", "я", "на", "ла", "ка", "ша", "ся"}

var maleExceptions = map[string]struct{}{
	"никита": {},
	"илья":   {},
	"савва":  {},
	"данила": {},
	"миша":   {},
	"саша":   {},
	"женя":   {},
}

// DetectGender guesses the gender from a Russian first name. Defaults
// to male when nothing matches, matching the message copy defaults.
func DetectGender(firstName string) Gender {
	if firstName == "" {
		return GenderUnknown
	}
	name := strings.ToLower(strings.TrimSpace(firstName))
	if _, ok := maleExceptions[name]; ok {
		return GenderMale
	}
	for _, ending := range femaleEndings {
		if strings.HasSuffix(name, ending) {
			return GenderFemale
		}
	}
	return GenderMale
}

// genderedForms maps the (а/)-style markers used in message copy to
// their resolved male/female forms.
var genderedForms = []struct {
	marker string
	male   string
	female string
}{
	{"запустил(а/)", "запустил", "запустила"},
	{"остановился(ась/)", "остановился", "остановилась"},
	{"готов(а/)", "готов", "готова"},
	{"видел(а/)", "видел", "видела"},
	{"заработал(а/)", "заработал", "заработала"},
	{"(а/)", "", "а"},
}

// Personalize resolves the gendered markers in message copy. Unknown
// gender reads as male, same as the source copy does.
func Personalize(text string, gender Gender) string {
	for _, f := range genderedForms {
		repl := f.male
		if gender == GenderFemale {
			repl = f.female
		}
		text = strings.ReplaceAll(text, f.marker, repl)
	}
	return text
}
