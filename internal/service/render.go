package service

import (
	"regexp"
	"strings"

	"wadispatch/internal/model"
)

// Recognized personalization tokens. Matching is case-insensitive; anything
// else in braces is left verbatim.
var placeholderPattern = regexp.MustCompile(`(?i)\{(nome|telefone|grupo)\}`)

// RenderTemplate substitutes the recipient's fields into the message
// template.
func RenderTemplate(template string, r model.Recipient) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		switch strings.ToLower(m[1 : len(m)-1]) {
		case "nome":
			return r.Name
		case "telefone":
			return r.Phone
		case "grupo":
			return r.Group
		}
		return m
	})
}
