// Package scan orchestrates the pipeline for one or more connections:
// list new messages since the sync watermark, triage them with the rule
// filter, extract actions from the survivors, and fold the day's
// findings into the user's briefing.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/askoehler/inboxpilot/internal/database"
	"github.com/askoehler/inboxpilot/internal/extract"
	"github.com/askoehler/inboxpilot/internal/filter"
	"github.com/askoehler/inboxpilot/internal/mail"
)

// MailClient is the slice of the mail adapter the scanner needs.
type MailClient interface {
	ListMessages(ctx context.Context, after time.Time, labelIDs []string, maxResults int64) ([]*mail.Message, error)
}

// ClientFactory builds an authenticated mail client for a connection.
// onRefresh receives newly minted tokens for persistence.
type ClientFactory func(ctx context.Context, conn *database.Connection, onRefresh mail.RefreshFunc) (MailClient, error)

// Extractor is the slice of the extraction layer the scanner needs.
type Extractor interface {
	ExtractActions(ctx context.Context, msg *mail.Message) extract.Result
	DailySummary(ctx context.Context, actions []extract.Action, userName string) string
}

// Options tune a Scanner.
type Options struct {
	MaxResults    int64 // messages fetched per connection per scan
	LookbackHours int   // window for connections with no watermark
	RecordLimit   int   // stored raw_content cap in bytes
}

// Result summarizes one scan run.
type Result struct {
	EmailsSeen   int
	EmailsNew    int
	ActionsFound int
}

// Scanner drives scans against the database.
type Scanner struct {
	db        *database.DB
	clients   ClientFactory
	extractor Extractor
	opts      Options

	// Guards briefing read-modify-write per user when scans overlap.
	briefingMu sync.Mutex
	userLocks  map[int64]*sync.Mutex
}

// New creates a Scanner.
func New(db *database.DB, clients ClientFactory, extractor Extractor, opts Options) *Scanner {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 50
	}
	if opts.LookbackHours <= 0 {
		opts.LookbackHours = 24
	}
	if opts.RecordLimit <= 0 {
		opts.RecordLimit = 5000
	}
	return &Scanner{
		db:        db,
		clients:   clients,
		extractor: extractor,
		opts:      opts,
		userLocks: make(map[int64]*sync.Mutex),
	}
}

func (s *Scanner) userLock(userID int64) *sync.Mutex {
	s.briefingMu.Lock()
	defer s.briefingMu.Unlock()
	mu, ok := s.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userLocks[userID] = mu
	}
	return mu
}

// ScanUser scans the user's active connections (or just one, when
// connectionID is non-nil) and updates the daily briefing if any new
// actions were found. A connection that fails mid-run does not stop the
// others; the first error is reported alongside the partial result.
func (s *Scanner) ScanUser(ctx context.Context, userID int64, connectionID *int64) (*Result, error) {
	var connections []database.Connection
	if connectionID != nil {
		conn, err := s.db.GetConnection(*connectionID)
		if err != nil {
			return nil, fmt.Errorf("loading connection %d: %w", *connectionID, err)
		}
		if conn == nil || conn.UserID != userID || !conn.IsActive {
			return nil, fmt.Errorf("no active connection %d for user %d", *connectionID, userID)
		}
		connections = []database.Connection{*conn}
	} else {
		var err error
		connections, err = s.db.GetActiveConnections(userID)
		if err != nil {
			return nil, fmt.Errorf("loading connections: %w", err)
		}
	}
	if len(connections) == 0 {
		return nil, fmt.Errorf("no active connections for user %d", userID)
	}

	total := &Result{}
	var allActions []extract.Action
	var firstErr error

	for i := range connections {
		conn := &connections[i]
		res, actions, err := s.scanConnection(ctx, conn)
		if err != nil {
			log.Printf("Scan failed for connection %d (%s): %v", conn.ID, conn.EmailAddress, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total.EmailsSeen += res.EmailsSeen
		total.EmailsNew += res.EmailsNew
		total.ActionsFound += res.ActionsFound
		allActions = append(allActions, actions...)
	}

	if len(allActions) > 0 {
		if err := s.updateBriefing(ctx, userID, allActions); err != nil {
			log.Printf("Briefing update failed for user %d: %v", userID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return total, firstErr
}

// scanConnection runs the pipeline for one connection. The watermark is
// taken at scan start and advanced unconditionally once the message
// loop finishes; per-message failures are logged and skipped, so a bad
// message never wedges the connection on old mail.
func (s *Scanner) scanConnection(ctx context.Context, conn *database.Connection) (*Result, []extract.Action, error) {
	scanStart := time.Now().UTC()

	after := scanStart.Add(-time.Duration(s.opts.LookbackHours) * time.Hour)
	if conn.LastSyncAt != nil && *conn.LastSyncAt != "" {
		if t := database.ParseTime(*conn.LastSyncAt); !t.IsZero() {
			after = t
		}
	}

	// The provider only sends a refresh token when it rotates one; keep
	// the last known value otherwise so a plain access refresh never
	// clobbers it.
	onRefresh := func(accessToken, refreshToken string, _ time.Time) error {
		if refreshToken != "" {
			conn.RefreshToken = refreshToken
		}
		return s.db.UpdateConnectionTokens(conn.ID, accessToken, conn.RefreshToken)
	}

	client, err := s.clients(ctx, conn, onRefresh)
	if err != nil {
		return nil, nil, fmt.Errorf("creating mail client: %w", err)
	}

	messages, err := client.ListMessages(ctx, after, []string{"INBOX"}, s.opts.MaxResults)
	if err != nil {
		if errors.Is(err, mail.ErrAuthExpired) {
			log.Printf("Deactivating connection %d (%s): %v", conn.ID, conn.EmailAddress, err)
			if derr := s.db.DeactivateConnection(conn.ID); derr != nil {
				log.Printf("Failed to deactivate connection %d: %v", conn.ID, derr)
			}
		}
		return nil, nil, fmt.Errorf("listing messages: %w", err)
	}

	result := &Result{EmailsSeen: len(messages)}
	var actions []extract.Action

	for _, msg := range messages {
		found, err := s.processMessage(ctx, conn, msg)
		if err != nil {
			log.Printf("Skipping message %s on connection %d: %v", msg.ID, conn.ID, err)
			continue
		}
		if found == nil {
			continue // already processed
		}
		result.EmailsNew++
		result.ActionsFound += len(found)
		actions = append(actions, found...)
	}

	if err := s.db.UpdateConnectionSyncTime(conn.ID, database.FormatTime(scanStart)); err != nil {
		return result, actions, fmt.Errorf("advancing watermark: %w", err)
	}

	return result, actions, nil
}

// processMessage runs triage and extraction for one message. Returns
// nil actions with nil error when the message was seen before.
func (s *Scanner) processMessage(ctx context.Context, conn *database.Connection, msg *mail.Message) ([]extract.Action, error) {
	seen, err := s.db.HasProcessedEmail(conn.ID, msg.ID)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, nil
	}

	verdict := filter.Classify(msg)

	rawContent := filter.Clip(msg.Body, s.opts.RecordLimit)

	sender := fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	likelyActionable := !verdict.IsNoise && verdict.IsLikelyActionable

	// Recorded as non-actionable until extraction actually yields
	// actions: the filter verdict decides whether to pay for a model
	// call, not what the record ends up saying.
	emailID, err := s.db.InsertProcessedEmail(
		conn.UserID, conn.ID, msg.ID,
		msg.Subject, sender, database.FormatTime(msg.Date),
		false, &rawContent,
	)
	if err != nil {
		return nil, err
	}
	if emailID == 0 {
		// Lost a race with a concurrent scan; the other writer owns it.
		return nil, nil
	}

	if !likelyActionable {
		return []extract.Action{}, nil
	}

	extraction := s.extractor.ExtractActions(ctx, msg)
	if !extraction.IsActionable || len(extraction.Actions) == 0 {
		return []extract.Action{}, nil
	}

	var stored []extract.Action
	for _, action := range extraction.Actions {
		var deadline *string
		if action.Deadline != nil {
			d := database.FormatTime(*action.Deadline)
			deadline = &d
		}
		_, err := s.db.InsertActionItem(&database.ActionItem{
			UserID:         conn.UserID,
			EmailID:        emailID,
			Title:          action.Title,
			Description:    action.Description,
			SenderName:     msg.FromName,
			SenderEmail:    msg.FromEmail,
			Deadline:       deadline,
			DeadlineSource: action.DeadlineSource,
			Priority:       action.Priority,
			Status:         "pending",
		})
		if err != nil {
			log.Printf("Failed to store action %q for email %s: %v", action.Title, msg.ID, err)
			continue
		}
		stored = append(stored, action)
	}

	if len(stored) > 0 {
		if err := s.db.MarkEmailActionable(emailID); err != nil {
			log.Printf("Failed to mark email %d actionable: %v", emailID, err)
		}
	}

	return stored, nil
}

// updateBriefing folds new actions into today's briefing. The summary
// is regenerated from this batch and replaces the previous text; the
// count accumulates across batches.
func (s *Scanner) updateBriefing(ctx context.Context, userID int64, actions []extract.Action) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	userName := "there"
	if profile, err := s.db.GetProfile(userID); err == nil && profile != nil {
		userName = strings.SplitN(profile.Email, "@", 2)[0]
	}

	summary := s.extractor.DailySummary(ctx, actions, userName)
	return s.db.UpsertBriefing(userID, database.Today(), summary, len(actions))
}
