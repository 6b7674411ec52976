package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		cb      *tele.Callback
		key     string
		payload string
	}{
		{"nil", nil, "", ""},
		{"raw data", &tele.Callback{Data: "\fcmd|check"}, "cmd", "check"},
		{"no payload", &tele.Callback{Data: "\fcmd"}, "cmd", ""},
		{"resolved by telebot", &tele.Callback{Unique: "cmd", Data: "delete"}, "cmd", "delete"},
		{"payload with separator", &tele.Callback{Data: "\fcmd|a|b"}, "cmd", "a|b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := Parse(tc.cb)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.payload, payload)
		})
	}
}
