package filter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/askoehler/inboxpilot/internal/mail"
)

func TestClassifyNoiseSender(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "noreply@github.com",
		Subject:   "Action required: review this PR",
	})
	if !result.IsNoise {
		t.Error("expected noise for noreply sender")
	}
	if !strings.Contains(result.NoiseReason, "Automated sender") {
		t.Errorf("unexpected reason: %q", result.NoiseReason)
	}
	if result.IsLikelyActionable {
		t.Error("noise messages should never be actionable")
	}
	if len(result.ActionIndicators) != 0 {
		t.Errorf("expected no indicators on noise, got %v", result.ActionIndicators)
	}
}

func TestClassifyNoiseSubject(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "colleague@example.com",
		Subject:   "Your order confirmation #12345",
	})
	if !result.IsNoise {
		t.Error("expected noise for order confirmation subject")
	}
	if result.NoiseReason != "Marketing/notification subject pattern" {
		t.Errorf("unexpected reason: %q", result.NoiseReason)
	}
}

func TestClassifyNoiseLabel(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "friend@example.com",
		Subject:   "Check this out",
		Labels:    []string{"INBOX", "CATEGORY_PROMOTIONS"},
	})
	if !result.IsNoise {
		t.Error("expected noise for promotions category")
	}
	if result.NoiseReason != "Gmail category: CATEGORY_PROMOTIONS" {
		t.Errorf("unexpected reason: %q", result.NoiseReason)
	}
}

func TestClassifyNoisePrecedence(t *testing.T) {
	// Sender check runs before subject and labels.
	result := Classify(&mail.Message{
		FromEmail: "newsletter@example.com",
		Subject:   "Weekly digest",
		Labels:    []string{"CATEGORY_UPDATES"},
	})
	if !strings.Contains(result.NoiseReason, "Automated sender") {
		t.Errorf("sender check should win, got reason %q", result.NoiseReason)
	}
}

func TestClassifyActionableSubject(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "boss@example.com",
		Subject:   "URGENT: budget approval",
	})
	if result.IsNoise {
		t.Error("should not be noise")
	}
	if !result.IsLikelyActionable {
		t.Error("expected actionable for urgent subject")
	}
	if len(result.ActionIndicators) == 0 {
		t.Fatal("expected at least one indicator")
	}
	if !strings.HasPrefix(result.ActionIndicators[0], "Subject contains:") {
		t.Errorf("unexpected indicator: %q", result.ActionIndicators[0])
	}
}

func TestClassifyActionableBody(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "peer@example.com",
		Subject:   "Q3 numbers",
		Body:      "Hi, can you please send the updated spreadsheet? The deadline is Friday.",
	})
	if !result.IsLikelyActionable {
		t.Error("expected actionable for request in body")
	}
	found := false
	for _, ind := range result.ActionIndicators {
		if strings.HasPrefix(ind, "Body contains:") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected body indicator, got %v", result.ActionIndicators)
	}
}

func TestClassifyPersonalLabel(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "friend@example.com",
		Subject:   "lunch",
		Body:      "usual place at noon",
		Labels:    []string{"INBOX", "CATEGORY_PERSONAL"},
	})
	if !result.IsLikelyActionable {
		t.Error("personal label should mark actionable")
	}
	if !contains(result.ActionIndicators, "Marked as personal/important") {
		t.Errorf("expected personal indicator, got %v", result.ActionIndicators)
	}
}

func TestClassifyNeutral(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "someone@example.com",
		Subject:   "FYI",
		Body:      "just sharing this for reference",
		Labels:    []string{"INBOX"},
	})
	if result.IsNoise {
		t.Error("should not be noise")
	}
	if result.IsLikelyActionable {
		t.Error("should not be actionable")
	}
}

func TestTruncate(t *testing.T) {
	short := "short text"
	if got := Truncate(short, 4000); got != short {
		t.Errorf("short text should pass through, got %q", got)
	}

	long := strings.Repeat("a", 100)
	got := Truncate(long, 50)
	if !strings.HasPrefix(got, strings.Repeat("a", 50)) {
		t.Error("expected truncation at limit")
	}
	if !strings.HasSuffix(got, "[Content truncated for processing]") {
		t.Errorf("expected truncation marker, got %q", got)
	}
}

func TestTruncateMultibyte(t *testing.T) {
	// 51 bytes of 3-byte runes; a byte cut at 50 would split the last one.
	text := strings.Repeat("日", 17)
	got := Truncate(text, 50)
	cut := strings.TrimSuffix(got, "\n\n[Content truncated for processing]")
	if !utf8.ValidString(cut) {
		t.Errorf("truncation split a rune: %q", cut)
	}
	if cut != strings.Repeat("日", 16) {
		t.Errorf("expected cut at rune boundary, got %d bytes", len(cut))
	}
}

func TestClip(t *testing.T) {
	if got := Clip("hello", 10); got != "hello" {
		t.Errorf("short text should pass through, got %q", got)
	}
	if got := Clip("hello", 3); got != "hel" {
		t.Errorf("expected 3-byte cut, got %q", got)
	}

	text := strings.Repeat("é", 10) // 2 bytes each
	got := Clip(text, 5)
	if !utf8.ValidString(got) {
		t.Errorf("clip split a rune: %q", got)
	}
	if got != strings.Repeat("é", 2) {
		t.Errorf("expected 4 bytes, got %d", len(got))
	}
}

func TestClassifyIndicatorsValidUTF8(t *testing.T) {
	result := Classify(&mail.Message{
		FromEmail: "peer@example.com",
		Subject:   "Bitte: follow-up zur Präsentation",
		Body:      "könntest du... could you please review the Entwürfe?",
	})
	if !result.IsLikelyActionable {
		t.Fatal("expected actionable")
	}
	for _, ind := range result.ActionIndicators {
		if !utf8.ValidString(ind) {
			t.Errorf("indicator contains a split rune: %q", ind)
		}
	}
}
