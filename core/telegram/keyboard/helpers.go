package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is one inline button. A non-empty URL makes a link button;
// otherwise Unique and Data form the callback payload.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

func (b InlineBtn) inline(markup *tele.ReplyMarkup) tele.InlineButton {
	if b.URL != "" {
		return *markup.URL(b.Text, b.URL).Inline()
	}
	return *markup.Data(b.Text, b.Unique, b.Data).Inline()
}

// InlineButtonsNPerRow lays buttons out left to right, n per row. n <= 1
// puts each button on its own row.
func InlineButtonsNPerRow(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	n = max(n, 1)
	markup := &tele.ReplyMarkup{}
	for i, b := range buttons {
		if i%n == 0 {
			markup.InlineKeyboard = append(markup.InlineKeyboard, make([]tele.InlineButton, 0, n))
		}
		last := len(markup.InlineKeyboard) - 1
		markup.InlineKeyboard[last] = append(markup.InlineKeyboard[last], b.inline(markup))
	}
	return markup
}
