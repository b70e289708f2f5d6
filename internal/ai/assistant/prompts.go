package assistant

import (
	"fmt"
	"strings"

	"github.com/xenovalaw/xenova/internal/models"
)

const researchSystemPrompt = `You are a legal research assistant for a law firm.
Answer with the applicable legal framework, relevant statutes and case law, and
the open questions a lawyer should verify. Say when you are unsure. Never
invent citations.`

const draftSystemPrompt = `You are a legal drafting assistant for a law firm.
Produce a clear, formal draft of the requested document. Mark every fact that
must be completed or verified by the lawyer with [COMPLETE].`

const summarizeSystemPrompt = `You summarize legal case files for the lawyers of
a firm. Give the current status, the pending tasks, the upcoming hearings and
deadlines, and the risks worth attention. Be concise.`

func systemPrompt(action Action) string {
	switch action {
	case ActionDraft:
		return draftSystemPrompt
	case ActionSummarizeCase:
		return summarizeSystemPrompt
	default:
		return researchSystemPrompt
	}
}

// caseContext renders the case file as plain text for the prompt.
func caseContext(c *models.Case, tasks []*models.Task, events []*models.CalendarEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case %s: %s\n", c.Number, c.Title)
	fmt.Fprintf(&b, "Status: %s\n", c.Status)
	if c.Court != "" {
		fmt.Fprintf(&b, "Court: %s\n", c.Court)
	}
	if c.Matter != "" {
		fmt.Fprintf(&b, "Matter: %s\n", c.Matter)
	}
	fmt.Fprintf(&b, "Opened: %s\n", c.OpenedAt.Format("2006-01-02"))

	if len(tasks) > 0 {
		b.WriteString("\nTasks:\n")
		for _, t := range tasks {
			fmt.Fprintf(&b, "- [%s] %s", t.Status, t.Title)
			if t.DueAt != nil {
				fmt.Fprintf(&b, " (due %s)", t.DueAt.Format("2006-01-02"))
			}
			b.WriteByte('\n')
		}
	}
	if len(events) > 0 {
		b.WriteString("\nCalendar:\n")
		for _, e := range events {
			fmt.Fprintf(&b, "- %s %s: %s", e.StartsAt.Format("2006-01-02 15:04"), e.Kind, e.Title)
			if e.Location != "" {
				fmt.Fprintf(&b, " at %s", e.Location)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
