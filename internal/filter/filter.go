// Package filter applies cheap rule-based triage to messages before
// any model call: automated senders, marketing subjects, and Gmail
// category labels mark noise; request-shaped language marks likely
// actionable. Everything here is pure string matching.
package filter

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/askoehler/inboxpilot/internal/mail"
)

var noiseSenders = []*regexp.Regexp{
	regexp.MustCompile(`(?i)noreply@`),
	regexp.MustCompile(`(?i)no-reply@`),
	regexp.MustCompile(`(?i)donotreply@`),
	regexp.MustCompile(`(?i)notifications?@`),
	regexp.MustCompile(`(?i)newsletter@`),
	regexp.MustCompile(`(?i)marketing@`),
	regexp.MustCompile(`(?i)promo@`),
	regexp.MustCompile(`(?i)updates?@`),
	regexp.MustCompile(`(?i)digest@`),
	regexp.MustCompile(`(?i)info@`),
	regexp.MustCompile(`(?i)support@.*\.com$`),
	regexp.MustCompile(`(?i)mailer-daemon`),
}

var noiseSubjects = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unsubscribe`),
	regexp.MustCompile(`(?i)newsletter`),
	regexp.MustCompile(`(?i)weekly digest`),
	regexp.MustCompile(`(?i)daily digest`),
	regexp.MustCompile(`(?i)your \w+ receipt`),
	regexp.MustCompile(`(?i)order confirmation`),
	regexp.MustCompile(`(?i)shipping confirmation`),
	regexp.MustCompile(`(?i)delivery notification`),
	regexp.MustCompile(`(?i)password reset`),
	regexp.MustCompile(`(?i)verify your email`),
	regexp.MustCompile(`(?i)welcome to`),
	regexp.MustCompile(`(?i)thanks for signing up`),
	regexp.MustCompile(`(?i)promotional`),
	regexp.MustCompile(`(?i)sale ends`),
	regexp.MustCompile(`(?i)% off`),
	regexp.MustCompile(`(?i)limited time`),
	regexp.MustCompile(`(?i)don't miss`),
	regexp.MustCompile(`(?i)reminder: your`),
}

var noiseLabels = map[string]bool{
	"CATEGORY_PROMOTIONS": true,
	"CATEGORY_UPDATES":    true,
	"CATEGORY_SOCIAL":     true,
	"CATEGORY_FORUMS":     true,
}

var actionSubjects = []*regexp.Regexp{
	regexp.MustCompile(`(?i)action required`),
	regexp.MustCompile(`(?i)action needed`),
	regexp.MustCompile(`(?i)urgent`),
	regexp.MustCompile(`(?i)please review`),
	regexp.MustCompile(`(?i)approval needed`),
	regexp.MustCompile(`(?i)waiting for your`),
	regexp.MustCompile(`(?i)response needed`),
	regexp.MustCompile(`(?i)reminder:`),
	regexp.MustCompile(`(?i)follow-up`),
	regexp.MustCompile(`(?i)deadline`),
	regexp.MustCompile(`(?i)due (today|tomorrow|by)`),
	regexp.MustCompile(`(?i)asap`),
	regexp.MustCompile(`(?i)time-sensitive`),
	regexp.MustCompile(`(?i)immediate attention`),
}

var actionBody = []*regexp.Regexp{
	regexp.MustCompile(`(?i)can you (please )?(send|provide|share|review|approve|confirm)`),
	regexp.MustCompile(`(?i)please (send|provide|share|review|approve|confirm|let me know)`),
	regexp.MustCompile(`(?i)i need you to`),
	regexp.MustCompile(`(?i)could you (please )?`),
	regexp.MustCompile(`(?i)would you (please )?`),
	regexp.MustCompile(`(?i)by (monday|tuesday|wednesday|thursday|friday|saturday|sunday)`),
	regexp.MustCompile(`(?i)by (end of day|eod|cob|tomorrow|next week)`),
	regexp.MustCompile(`(?i)deadline is`),
	regexp.MustCompile(`(?i)due (on|by)`),
	regexp.MustCompile(`(?i)respond by`),
	regexp.MustCompile(`(?i)let me know (by|if|when|what)`),
	regexp.MustCompile(`(?i)awaiting your (response|reply|feedback|approval)`),
	regexp.MustCompile(`(?i)your (input|feedback|approval|decision) is needed`),
	regexp.MustCompile(`(?i)schedule a (call|meeting)`),
	regexp.MustCompile(`(?i)can we (meet|talk|discuss)`),
}

// Result is the triage verdict for one message.
type Result struct {
	IsNoise            bool
	IsLikelyActionable bool
	NoiseReason        string
	ActionIndicators   []string
}

// Classify runs the rule tables against a message. Noise checks short
// circuit in order (sender, subject, labels); action indicators only
// accumulate on messages that are not noise.
func Classify(msg *mail.Message) Result {
	var result Result

	for _, re := range noiseSenders {
		if re.MatchString(msg.FromEmail) {
			result.IsNoise = true
			result.NoiseReason = fmt.Sprintf("Automated sender: %s", msg.FromEmail)
			return result
		}
	}

	for _, re := range noiseSubjects {
		if re.MatchString(msg.Subject) {
			result.IsNoise = true
			result.NoiseReason = "Marketing/notification subject pattern"
			return result
		}
	}

	for _, label := range msg.Labels {
		if noiseLabels[label] {
			result.IsNoise = true
			result.NoiseReason = fmt.Sprintf("Gmail category: %s", label)
			return result
		}
	}

	for _, re := range actionSubjects {
		if m := re.FindString(msg.Subject); m != "" {
			result.IsLikelyActionable = true
			result.ActionIndicators = append(result.ActionIndicators, fmt.Sprintf("Subject contains: %q", m))
		}
	}

	for _, re := range actionBody {
		if m := re.FindString(msg.Body); m != "" {
			result.IsLikelyActionable = true
			m = Clip(m, 50)
			indicator := fmt.Sprintf("Body contains: %q", m)
			if !contains(result.ActionIndicators, indicator) {
				result.ActionIndicators = append(result.ActionIndicators, indicator)
			}
		}
	}

	// Primary inbox mail from real people tends to need a response even
	// without request language.
	for _, label := range msg.Labels {
		if label == "CATEGORY_PERSONAL" || label == "IMPORTANT" {
			result.IsLikelyActionable = true
			result.ActionIndicators = append(result.ActionIndicators, "Marked as personal/important")
			break
		}
	}

	return result
}

// Truncate caps text before it goes to the model, appending a marker so
// the model knows content was cut.
func Truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return Clip(text, maxLen) + "\n\n[Content truncated for processing]"
}

// Clip cuts text to at most max bytes without splitting a multi-byte
// UTF-8 sequence, backing up to the nearest rune boundary.
func Clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
