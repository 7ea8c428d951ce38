// Package schedule decides when scans run: the daily sweep that fires
// when a user's local clock enters their scan hour, and the queue of
// one-off deferred scans.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/askoehler/inboxpilot/internal/database"
	"github.com/askoehler/inboxpilot/internal/scan"
)

// ScanRunner is the slice of the scanner the scheduler drives.
type ScanRunner interface {
	ScanUser(ctx context.Context, userID int64, connectionID *int64) (*scan.Result, error)
}

// Scheduler runs due work against the database.
type Scheduler struct {
	db              *database.DB
	scanner         ScanRunner
	defaultTimezone string
}

// New creates a Scheduler. defaultTimezone is used for profiles whose
// stored timezone is empty or unloadable.
func New(db *database.DB, scanner ScanRunner, defaultTimezone string) *Scheduler {
	return &Scheduler{db: db, scanner: scanner, defaultTimezone: defaultTimezone}
}

// RunDailyScans scans every connection belonging to users whose local
// hour matches their configured scan hour at the given instant. Called
// hourly; the hour-level match means each user fires at most once per
// day per invocation hour. Returns the number of connections scanned.
func (s *Scheduler) RunDailyScans(ctx context.Context, now time.Time) (int, error) {
	profiles, err := s.db.GetAllProfiles()
	if err != nil {
		return 0, fmt.Errorf("loading profiles: %w", err)
	}

	var due []int64
	for _, profile := range profiles {
		if s.localHour(now, profile.Timezone) == profile.ScanHour {
			due = append(due, profile.ID)
		}
	}
	if len(due) == 0 {
		return 0, nil
	}

	connections, err := s.db.GetActiveConnectionsForUsers(due)
	if err != nil {
		return 0, fmt.Errorf("loading connections: %w", err)
	}

	processed := 0
	for i := range connections {
		conn := &connections[i]
		if _, err := s.scanner.ScanUser(ctx, conn.UserID, &conn.ID); err != nil {
			log.Printf("Daily scan failed for connection %d (user %d): %v", conn.ID, conn.UserID, err)
			continue
		}
		processed++
	}
	return processed, nil
}

// ProcessDueScans executes pending scheduled scans whose time has come.
// Each scan transitions exactly once: to completed on success, to
// failed on error or when its connection is gone or inactive. Returns
// (completed, due).
func (s *Scheduler) ProcessDueScans(ctx context.Context, now time.Time) (int, int, error) {
	due, err := s.db.GetDueScans(database.FormatTime(now))
	if err != nil {
		return 0, 0, fmt.Errorf("loading due scans: %w", err)
	}

	processed := 0
	for _, job := range due {
		conn, err := s.db.GetConnection(job.ConnectionID)
		if err != nil || conn == nil || !conn.IsActive {
			log.Printf("Scheduled scan %d has no usable connection %d, marking failed", job.ID, job.ConnectionID)
			s.markScan(job.ID, "failed")
			continue
		}

		if _, err := s.scanner.ScanUser(ctx, job.UserID, &job.ConnectionID); err != nil {
			log.Printf("Scheduled scan %d failed: %v", job.ID, err)
			s.markScan(job.ID, "failed")
			continue
		}

		s.markScan(job.ID, "completed")
		processed++
	}
	return processed, len(due), nil
}

func (s *Scheduler) markScan(scanID int64, status string) {
	if err := s.db.UpdateScanStatus(scanID, status); err != nil {
		log.Printf("Failed to mark scan %d %s: %v", scanID, status, err)
	}
}

// localHour resolves the user's current hour in their timezone,
// falling back to the default when the zone name does not load.
func (s *Scheduler) localHour(now time.Time, timezone string) int {
	if timezone == "" {
		timezone = s.defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("Unknown timezone %q, using %s", timezone, s.defaultTimezone)
		loc, err = time.LoadLocation(s.defaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}
	return now.In(loc).Hour()
}
