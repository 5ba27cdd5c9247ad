package analysis

import (
	"bytes"
	"html/template"

	"github.com/ashureev/support-chat/internal/domain"
)

// EmailSubject is the subject line of follow-up notifications.
const EmailSubject = "Follow-up on your support conversation"

var emailTemplate = template.Must(template.New("email").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Thank you for contacting support</h2>
  <p>{{.Context}}</p>
  {{- if .Summary}}
  <p><strong>Summary:</strong> {{.Summary}}</p>
  {{- end}}
  {{- if .TicketType}}
  <p><strong>Ticket type:</strong> {{.TicketType}}</p>
  {{- end}}
  <p>If you have any further questions, reply to this email and our team will get back to you.</p>
  <p>Best regards,<br>Customer Support</p>
</body>
</html>`))

// RenderEmail composes the fixed follow-up message for a verdict. Verdict text
// is HTML-escaped.
func RenderEmail(v *domain.Verdict) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Context    string
		Summary    string
		TicketType string
	}{
		Context:    v.EmailContext,
		Summary:    v.TicketSummary,
		TicketType: v.TicketType,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
