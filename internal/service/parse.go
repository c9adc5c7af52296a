package service

import (
	"strings"

	"wadispatch/internal/model"
)

// ParseRecipients turns the submitted recipient text into an ordered list.
// One recipient per line, comma-separated phone,name,group. Blank lines and
// lines without a phone are dropped silently.
func ParseRecipients(text string) []model.Recipient {
	var out []model.Recipient

	for _, line := range strings.Split(text, "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), ",")

		phone := strings.TrimSpace(fields[0])
		if phone == "" {
			continue
		}

		r := model.Recipient{Phone: phone}
		if len(fields) > 1 {
			r.Name = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			r.Group = strings.TrimSpace(fields[2])
		}
		out = append(out, r)
	}

	return out
}

// digitsOnly strips everything but digits; the gateway expects bare
// international numbers.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
