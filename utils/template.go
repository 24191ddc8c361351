package utils

import (
	"strings"

	"relaycrm/models"
)

// NoSubjectFallback is used when neither the step nor the template carries a
// subject line.
const NoSubjectFallback = "(No Subject)"

// RenderContactVariables substitutes {{first_name}}, {{last_name}} and
// {{email}} placeholders with the contact's fields. Replacement is global and
// a missing field substitutes the empty string, never a literal null.
func RenderContactVariables(body string, contact *models.Contact) string {
	replacer := strings.NewReplacer(
		"{{first_name}}", contact.FirstName,
		"{{last_name}}", contact.LastName,
		"{{email}}", contact.Email,
	)
	return replacer.Replace(body)
}

// EffectiveSubject resolves a step's subject: step override first, then the
// template subject, then the fixed fallback.
func EffectiveSubject(step models.SequenceStep, tmpl *models.Template) string {
	if step.Subject != "" {
		return step.Subject
	}
	if tmpl.Subject != "" {
		return tmpl.Subject
	}
	return NoSubjectFallback
}

// EffectiveBody resolves a template's body: HTML first, then plain text, then
// the empty string.
func EffectiveBody(tmpl *models.Template) string {
	if tmpl.HTMLContent != "" {
		return tmpl.HTMLContent
	}
	return tmpl.TextContent
}
