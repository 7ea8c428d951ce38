package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

// seedConnection creates a profile and an active connection for it.
func seedConnection(t *testing.T, db *DB) (userID, connID int64) {
	t.Helper()
	userID, err := db.InsertProfile("alice@example.com", ptr("Alice"), "America/Los_Angeles", 8)
	if err != nil || userID == 0 {
		t.Fatalf("insert profile: id=%d err=%v", userID, err)
	}
	connID, err = db.InsertConnection(userID, "gmail", "alice@example.com", "tok", "refresh")
	if err != nil || connID == 0 {
		t.Fatalf("insert connection: id=%d err=%v", connID, err)
	}
	return userID, connID
}

func TestInsertDuplicateProfile(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.InsertProfile("bob@example.com", nil, "UTC", 9)
	if id == 0 {
		t.Fatal("expected non-zero profile id")
	}
	dup, err := db.InsertProfile("bob@example.com", nil, "UTC", 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup != 0 {
		t.Error("expected 0 for duplicate email")
	}
}

func TestConnectionLifecycle(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)

	conn, err := db.GetConnection(connID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn == nil || !conn.IsActive {
		t.Fatal("expected active connection")
	}
	if conn.LastSyncAt != nil {
		t.Error("expected nil watermark on new connection")
	}

	if err := db.UpdateConnectionTokens(connID, "new-access", "new-refresh"); err != nil {
		t.Fatalf("update tokens: %v", err)
	}
	if err := db.UpdateConnectionSyncTime(connID, "2026-08-28T10:00:00Z"); err != nil {
		t.Fatalf("update sync time: %v", err)
	}
	if err := db.DeactivateConnection(connID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	conn, _ = db.GetConnection(connID)
	if conn.AccessToken != "new-access" || conn.RefreshToken != "new-refresh" {
		t.Error("expected refreshed token pair")
	}
	if conn.LastSyncAt == nil || *conn.LastSyncAt != "2026-08-28T10:00:00Z" {
		t.Error("expected advanced watermark")
	}
	if conn.IsActive {
		t.Error("expected inactive connection after deactivation")
	}

	active, _ := db.GetActiveConnections(userID)
	if len(active) != 0 {
		t.Errorf("expected 0 active connections, got %d", len(active))
	}

	if err := db.ReactivateConnection(connID, "again", "again-refresh"); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	conn, _ = db.GetConnection(connID)
	if !conn.IsActive || conn.AccessToken != "again" {
		t.Error("expected reactivated connection with new tokens")
	}
}

func TestProcessedEmailUniqueness(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)

	id, err := db.InsertProcessedEmail(userID, connID, "msg-1", "Subject", "Bob <bob@x.com>",
		"2026-08-28T09:00:00Z", false, ptr("body"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero email id")
	}

	dup, err := db.InsertProcessedEmail(userID, connID, "msg-1", "Subject again", "Bob <bob@x.com>",
		"2026-08-28T09:00:00Z", true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup != 0 {
		t.Error("expected 0 for duplicate (connection, external_id)")
	}

	seen, err := db.HasProcessedEmail(connID, "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Error("expected msg-1 to be recorded")
	}
	seen, _ = db.HasProcessedEmail(connID, "msg-2")
	if seen {
		t.Error("did not expect msg-2 to be recorded")
	}
}

func TestInsertPropagatesNonDuplicateErrors(t *testing.T) {
	db := openTestDB(t)
	userID, _ := seedConnection(t, db)

	// Only a UNIQUE violation reads as "already recorded"; a foreign key
	// failure must surface so the caller can log and skip the record.
	_, err := db.InsertProcessedEmail(userID, 999, "msg-1", "S", "x@y.com",
		"2026-08-28T09:00:00Z", false, nil)
	if err == nil {
		t.Fatal("expected foreign key error inserting email for missing connection")
	}

	if _, err := db.InsertConnection(999, "gmail", "ghost@example.com", "at", "rt"); err == nil {
		t.Fatal("expected foreign key error inserting connection for missing profile")
	}
}

func TestMarkEmailActionable(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)

	id, _ := db.InsertProcessedEmail(userID, connID, "msg-1", "S", "x@y.com",
		"2026-08-28T09:00:00Z", false, nil)
	if err := db.MarkEmailActionable(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, _ := db.GetProcessedEmail(id)
	if e == nil || !e.IsActionable {
		t.Error("expected actionable flag upgraded to true")
	}
}

func TestListActionItemsOrdering(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)
	emailID, _ := db.InsertProcessedEmail(userID, connID, "msg-1", "S", "x@y.com",
		"2026-08-28T09:00:00Z", true, nil)

	insert := func(title, priority string, deadline *string) {
		t.Helper()
		_, err := db.InsertActionItem(&ActionItem{
			UserID: userID, EmailID: emailID, Title: title,
			Deadline: deadline, DeadlineSource: "none",
			Priority: priority, Status: "pending",
		})
		if err != nil {
			t.Fatalf("insert action %q: %v", title, err)
		}
	}

	insert("low no deadline", "low", nil)
	insert("medium later", "medium", ptr("2026-09-02T00:00:00Z"))
	insert("high no deadline", "high", nil)
	insert("high soon", "high", ptr("2026-08-29T00:00:00Z"))
	insert("medium no deadline", "medium", nil)

	actions, err := db.ListActionItems(userID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"high soon", "high no deadline", "medium later", "medium no deadline", "low no deadline"}
	if len(actions) != len(want) {
		t.Fatalf("expected %d actions, got %d", len(want), len(actions))
	}
	for i, title := range want {
		if actions[i].Title != title {
			t.Errorf("position %d: expected %q, got %q", i, title, actions[i].Title)
		}
	}
}

func TestUpdateActionStatus(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)
	emailID, _ := db.InsertProcessedEmail(userID, connID, "msg-1", "S", "x@y.com",
		"2026-08-28T09:00:00Z", true, nil)
	id, _ := db.InsertActionItem(&ActionItem{
		UserID: userID, EmailID: emailID, Title: "t",
		DeadlineSource: "none", Priority: "low", Status: "pending",
	})

	if err := db.UpdateActionStatus(id, "snoozed", ptr("2026-08-30T08:00:00Z")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := db.GetActionItem(id)
	if a.Status != "snoozed" || a.SnoozedUntil == nil {
		t.Error("expected snoozed with snoozed_until set")
	}

	if err := db.UpdateActionStatus(id, "completed", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ = db.GetActionItem(id)
	if a.Status != "completed" || a.SnoozedUntil != nil {
		t.Error("expected completed with snoozed_until cleared")
	}
}

func TestUpsertBriefingAccumulatesCount(t *testing.T) {
	db := openTestDB(t)
	userID, _ := seedConnection(t, db)

	if err := db.UpsertBriefing(userID, "2026-08-28", "first summary", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.UpsertBriefing(userID, "2026-08-28", "second summary", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := db.GetBriefing(userID, "2026-08-28")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b == nil {
		t.Fatal("expected briefing row")
	}
	// Summary replaced, count accumulated.
	if b.Summary != "second summary" {
		t.Errorf("expected replaced summary, got %q", b.Summary)
	}
	if b.ActionCount != 5 {
		t.Errorf("expected action_count 5, got %d", b.ActionCount)
	}

	// Different date gets its own row.
	if err := db.UpsertBriefing(userID, "2026-08-29", "next day", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	briefings, _ := db.GetBriefings(userID)
	if len(briefings) != 2 {
		t.Fatalf("expected 2 briefings, got %d", len(briefings))
	}
	if briefings[0].BriefingDate != "2026-08-29" {
		t.Errorf("expected newest date first, got %q", briefings[0].BriefingDate)
	}
}

func TestScheduleScanFailsPriorPending(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)

	first, err := db.ScheduleScan(userID, connID, "2026-08-28T12:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := db.ScheduleScan(userID, connID, "2026-08-28T15:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := db.GetPendingScan(connID)
	if pending == nil || pending.ID != second {
		t.Fatal("expected only the newest scan to be pending")
	}

	due, _ := db.GetDueScans("2026-08-29T00:00:00Z")
	if len(due) != 1 || due[0].ID != second {
		t.Errorf("expected 1 due scan (the newest), got %d", len(due))
	}
	_ = first
}

func TestScanStatusTransitionsOnce(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)
	id, _ := db.ScheduleScan(userID, connID, "2026-08-28T12:00:00Z")

	if err := db.UpdateScanStatus(id, "completed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A completed scan is never reopened or re-failed.
	if err := db.UpdateScanStatus(id, "failed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	due, _ := db.GetDueScans("2026-09-01T00:00:00Z")
	if len(due) != 0 {
		t.Errorf("expected no due scans, got %d", len(due))
	}
	pending, _ := db.GetPendingScan(connID)
	if pending != nil {
		t.Error("expected no pending scan")
	}
}

func TestDeleteConnectionPurgesDependents(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)

	emailID, _ := db.InsertProcessedEmail(userID, connID, "msg-1", "S", "x@y.com",
		"2026-08-28T09:00:00Z", true, nil)
	db.InsertActionItem(&ActionItem{
		UserID: userID, EmailID: emailID, Title: "t",
		DeadlineSource: "none", Priority: "low", Status: "pending",
	})
	db.ScheduleScan(userID, connID, "2026-08-28T12:00:00Z")

	if err := db.DeleteConnection(connID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conn, _ := db.GetConnection(connID); conn != nil {
		t.Error("expected connection removed")
	}
	if e, _ := db.GetProcessedEmail(emailID); e != nil {
		t.Error("expected processed email removed")
	}
	if actions, _ := db.ListActionItems(userID, nil); len(actions) != 0 {
		t.Errorf("expected 0 actions, got %d", len(actions))
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	userID, connID := seedConnection(t, db)
	db.InsertProcessedEmail(userID, connID, "msg-1", "S", "x@y.com",
		"2026-08-28T09:00:00Z", true, nil)

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Profiles != 1 || stats.ActiveConnections != 1 {
		t.Errorf("unexpected profile/connection counts: %+v", stats)
	}
	if stats.ProcessedEmails != 1 || stats.ActionableEmails != 1 {
		t.Errorf("unexpected email counts: %+v", stats)
	}
}
