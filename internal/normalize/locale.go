package normalize

import (
	"golang.org/x/text/language"
)

// Texts are the fallback title/body shown when a payload carries none.
type Texts struct {
	Title string
	Body  string
}

var (
	catalogTags = []language.Tag{language.English, language.Thai}
	catalog     = map[language.Tag]Texts{
		language.English: {Title: "New notification", Body: "You have a new notification"},
		language.Thai:    {Title: "แจ้งเตือนจากตู้ล็อกเกอร์", Body: "คุณมีการแจ้งเตือนใหม่"},
	}
	matcher = language.NewMatcher(catalogTags)
)

// DefaultTexts returns the catalog entry that best matches locale
// (a BCP 47 tag such as "th-TH"). Unknown or empty locales get English.
func DefaultTexts(locale string) Texts {
	if locale == "" {
		return catalog[language.English]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return catalog[language.English]
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return catalog[language.English]
	}
	return catalog[catalogTags[idx]]
}
