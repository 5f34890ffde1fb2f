package extract

import "strings"

// KeywordSet is a list of lowercase stems matched as substrings
type KeywordSet []string

var (
	ApproveKeywords    = KeywordSet{"утвержд", "утвердил", "одобр", "согласован", "апрув", "approve"}
	PosterKeywords     = KeywordSet{"афиш", "постер", "poster"}
	TextKeywords       = KeywordSet{"текст", "описани"}
	TicketKeywords     = KeywordSet{"билет", "ticket", "касс"}
	DateChangeKeywords = KeywordSet{"перенос", "перенесли", "перенесен", "перенесён", "новая дата", "дата изменилась", "изменение даты", "сменилась дата"}
	CancelKeywords     = KeywordSet{"отмена", "отменяется", "отменили", "отменен", "отменён", "cancel"}
	MusicKeywords      = KeywordSet{"яндекс музык", "яндекс.музык", "слушать", "music"}
)

// HasKeyword reports case-insensitive presence of any keyword of the set
func HasKeyword(text string, set KeywordSet) bool {
	lower := strings.ToLower(text)
	for _, k := range set {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
