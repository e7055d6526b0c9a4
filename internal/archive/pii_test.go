package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScrubPII(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"email":              {"write to rescue.team@example.org", "write to [EMAIL]"},
		"us phone":           {"call me at (330) 333-2654", "call me at[PHONE]"},
		"e164":               {"my number is +15005550002", "my number is [PHONE]"},
		"german landline":    {"reach my mother on +49 30 1234567 please", "reach my mother on [PHONE] please"},
		"spanish mobile":     {"whatsapp +34 600 123 456 now", "whatsapp [PHONE] now"},
		"email and phone":    {"a@b.com or 330-333-2654", "[EMAIL] or[PHONE]"},
		"address kept":       {"we are at 12 Calle Colon, Valencia", "we are at 12 Calle Colon, Valencia"},
		"small numbers kept": {"3 people, water +2 m since 14:30", "3 people, water +2 m since 14:30"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ScrubPII(tc.in))
		})
	}
}

func TestScrubMessagesInPlace(t *testing.T) {
	now := time.Now()
	msgs := []Message{
		{Sender: "user", Text: "text me on +44 7700 900123", Timestamp: now},
		{Sender: "agent", Text: "Stay on the upper floor.", Timestamp: now},
	}
	ScrubMessages(msgs)
	assert.Equal(t, "text me on [PHONE]", msgs[0].Text)
	assert.Equal(t, "Stay on the upper floor.", msgs[1].Text)
}
