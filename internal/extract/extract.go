// Package extract turns email content into structured action items via
// an LLM, and composes the daily briefing summary from the day's
// extracted actions.
package extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/askoehler/inboxpilot/internal/filter"
	"github.com/askoehler/inboxpilot/internal/llm"
	"github.com/askoehler/inboxpilot/internal/mail"
)

const extractionSystemPrompt = `You are an AI assistant that analyzes emails to extract action items. Your task is to identify tasks, requests, or actions that require the recipient's attention or response.

For each email, you must:
1. Determine if the email contains actionable items (not just informational content, newsletters, or automated notifications)
2. Extract specific action items with clear titles and descriptions
3. Identify any deadlines (explicit dates mentioned, or inferred from context like "by end of week")
4. Assess priority based on urgency signals, sender importance, and deadline proximity

Respond with a JSON object in this exact format:
{
  "isActionable": boolean,
  "actions": [
    {
      "title": "Brief action title (max 50 chars)",
      "description": "Detailed description of what needs to be done",
      "deadline": "ISO date string or null",
      "deadlineSource": "explicit" | "inferred" | "none",
      "priority": "high" | "medium" | "low"
    }
  ],
  "reasoning": "Brief explanation of your analysis"
}

Priority guidelines:
- high: Urgent requests, tight deadlines (within 24-48 hours), important senders, critical business matters
- medium: Normal requests with reasonable deadlines, standard business communications
- low: Nice-to-have tasks, no deadline, informational requests

Only extract genuine action items. Ignore:
- Marketing emails and newsletters
- Automated notifications (shipping updates, social media alerts)
- Spam or promotional content
- Pure informational messages with no required action`

const summarySystemPrompt = "You are a helpful assistant that creates brief, professional daily briefing summaries. Be concise but informative."

// Action is one extracted action item, pre-persistence.
type Action struct {
	Title          string
	Description    string
	Deadline       *time.Time
	DeadlineSource string // "explicit", "inferred", "none"
	Priority       string // "high", "medium", "low"
}

// Result is the model's verdict for one email.
type Result struct {
	IsActionable bool
	Actions      []Action
	Reasoning    string
}

// Extractor runs model calls for extraction and summaries.
type Extractor struct {
	provider  llm.Provider
	bodyLimit int
}

// New creates an Extractor. bodyLimit caps how much email body is sent
// to the model per call.
func New(provider llm.Provider, bodyLimit int) *Extractor {
	return &Extractor{provider: provider, bodyLimit: bodyLimit}
}

// ExtractActions analyzes one email. Model failures and unparseable
// responses degrade to a non-actionable result so a single bad call
// never aborts a scan.
func (e *Extractor) ExtractActions(ctx context.Context, msg *mail.Message) Result {
	prompt := fmt.Sprintf(`Analyze this email for action items:

Subject: %s
From: %s <%s>
Date: %s

Body:
%s`, msg.Subject, msg.FromName, msg.FromEmail, msg.Date.UTC().Format(time.RFC3339), filter.Truncate(msg.Body, e.bodyLimit))

	resp, err := e.provider.Generate(ctx, llm.Request{
		System:      extractionSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   1000,
		Temperature: 0.3,
	})
	if err != nil {
		log.Printf("Error extracting actions from email %s: %v", msg.ID, err)
		return Result{Reasoning: "Error processing email"}
	}

	parsed := llm.ParseJSONResponse(resp)
	if parsed == nil {
		log.Printf("Unparseable extraction response for email %s", msg.ID)
		return Result{Reasoning: "Error processing email"}
	}

	return buildResult(parsed, msg.ID)
}

// buildResult validates the model's JSON into a Result. Individual
// actions with malformed fields are dropped, not the whole email.
func buildResult(parsed map[string]any, msgID string) Result {
	result := Result{}
	result.IsActionable, _ = parsed["isActionable"].(bool)
	result.Reasoning, _ = parsed["reasoning"].(string)

	rawActions, _ := parsed["actions"].([]any)
	for _, raw := range rawActions {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		action := Action{}
		action.Title, _ = obj["title"].(string)
		action.Description, _ = obj["description"].(string)
		if action.Title == "" {
			continue
		}

		action.DeadlineSource, _ = obj["deadlineSource"].(string)
		switch action.DeadlineSource {
		case "explicit", "inferred", "none":
		default:
			action.DeadlineSource = "none"
		}

		action.Priority, _ = obj["priority"].(string)
		switch action.Priority {
		case "high", "medium", "low":
		default:
			action.Priority = "medium"
		}

		if rawDeadline, ok := obj["deadline"].(string); ok && rawDeadline != "" && rawDeadline != "null" {
			t, err := dateparse.ParseAny(rawDeadline)
			if err != nil {
				log.Printf("Dropping action %q from email %s: bad deadline %q: %v", action.Title, msgID, rawDeadline, err)
				continue
			}
			action.Deadline = &t
		}
		if action.Deadline == nil {
			action.DeadlineSource = "none"
		}

		result.Actions = append(result.Actions, action)
	}

	// A response claiming actionability with zero surviving actions is
	// treated as non-actionable.
	if len(result.Actions) == 0 {
		result.IsActionable = false
	}

	return result
}

// DailySummary composes the briefing text for a day's actions. Zero
// actions skip the model entirely; model failure falls back to a plain
// count so the briefing row is never blocked on the provider.
func (e *Extractor) DailySummary(ctx context.Context, actions []Action, userName string) string {
	if len(actions) == 0 {
		return "No new action items today. Your inbox is clear of pending responsibilities."
	}

	var list strings.Builder
	for i, a := range actions {
		fmt.Fprintf(&list, "%d. [%s] %s", i+1, strings.ToUpper(a.Priority), a.Title)
		if a.Deadline != nil {
			fmt.Fprintf(&list, " (Due: %s)", a.Deadline.Format("1/2/2006"))
		}
		list.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Create a brief daily briefing summary (2-3 sentences) for %s based on these action items extracted from their emails today:

%s
Focus on the most important or urgent items and give an encouraging, professional overview of what needs attention today.`, userName, list.String())

	resp, err := e.provider.Generate(ctx, llm.Request{
		System:      summarySystemPrompt,
		Prompt:      prompt,
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil || strings.TrimSpace(resp) == "" {
		if err != nil {
			log.Printf("Error generating daily summary: %v", err)
		}
		return fallbackSummary(len(actions))
	}
	return strings.TrimSpace(resp)
}

func fallbackSummary(n int) string {
	if n == 1 {
		return "You have 1 action item to review today."
	}
	return fmt.Sprintf("You have %d action items to review today.", n)
}
