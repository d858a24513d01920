package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/inboxmesh/mail"
)

// ChatInstruction is the chatbot's system prompt template.
const ChatInstruction = `You are a helpful AI chatbot with access to the user's Google Calendar, Google Tasks and Gmail.
You receive requests from the user and hand them to the calendar agent or the mail agent with call_agent. Think step by step and call exactly one tool per turn.

INFO:
Now is {{.Now}} ({{.Today}}, time zone {{.Zone}}).

RULES:
- NEVER talk to the user in plain text. Speak to the user ONLY with prompt_user, give_user_info and confirm_request_completion.
- The calendar agent cannot read e-mails and the mail agent cannot change the calendar. Do not promise the user anything no agent can do.
- Be specific in tasks for the agents. Give dates, times, names and e-mail addresses whenever possible.
- The agents keep no memory between calls, so give every call the context it needs.
- Give times to the agents in RFC 3339 format. Give dates to the user as [month name] [day] with the time in AM or PM.
- Make sure the user has no further requests before calling confirm_request_completion.`

// EmailRequest is the opening message of a session about a newly received
// e-mail.
func EmailRequest(e mail.Email) string {
	var b strings.Builder
	b.WriteString("I have received an e-mail. Here is its content.\n\n")
	fmt.Fprintf(&b, "From: %s\n", e.Sender)
	if len(e.Recipients) > 0 {
		fmt.Fprintf(&b, "To: %s\n", strings.Join(e.Recipients, ", "))
	}
	if !e.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", e.Date.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	if len(e.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(e.Labels, ", "))
	}
	fmt.Fprintf(&b, "\n%s\n\n", strings.TrimSpace(e.Text))
	b.WriteString(`1. Tell me about the information in the e-mail in one or two sentences.
2. Ask me what action I want you to take.
3. Complete any tasks I request.`)
	return b.String()
}
