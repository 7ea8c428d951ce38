// Package server exposes the JSON API: manual and scheduled scans,
// action item listing and updates, briefings, and the two cron
// endpoints the hourly trigger calls.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/askoehler/inboxpilot/internal/database"
	"github.com/askoehler/inboxpilot/internal/scan"
)

// ScanRunner runs on-demand scans.
type ScanRunner interface {
	ScanUser(ctx context.Context, userID int64, connectionID *int64) (*scan.Result, error)
}

// CronRunner runs the scheduled work behind the cron endpoints.
type CronRunner interface {
	RunDailyScans(ctx context.Context, now time.Time) (int, error)
	ProcessDueScans(ctx context.Context, now time.Time) (int, int, error)
}

// UnreadFunc reports the unread count for one connection's mailbox.
type UnreadFunc func(ctx context.Context, conn *database.Connection) (int64, error)

// Server is the HTTP API server.
type Server struct {
	db         *database.DB
	scanner    ScanRunner
	cron       CronRunner
	unread     UnreadFunc
	cronSecret string
	mux        *http.ServeMux
}

// New creates a Server. cronSecret guards the cron endpoints; when it
// is empty they always return 401.
func New(db *database.DB, scanner ScanRunner, cron CronRunner, unread UnreadFunc, cronSecret string) *Server {
	s := &Server{
		db:         db,
		scanner:    scanner,
		cron:       cron,
		unread:     unread,
		cronSecret: cronSecret,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/emails/count", s.handleEmailCount)
	s.mux.HandleFunc("/api/schedule-scan", s.handleScheduleScan)
	s.mux.HandleFunc("/api/actions", s.handleActions)
	s.mux.HandleFunc("/api/actions/", s.handleActionUpdate)
	s.mux.HandleFunc("/api/briefings/today", s.handleBriefingToday)
	s.mux.HandleFunc("/api/cron/daily-scan", s.handleCronDailyScan)
	s.mux.HandleFunc("/api/cron/process-scheduled", s.handleCronProcessScheduled)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		UserID       int64  `json:"userId"`
		ConnectionID *int64 `json:"connectionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	result, err := s.scanner.ScanUser(r.Context(), body.UserID, body.ConnectionID)
	if err != nil && result == nil {
		log.Printf("Email scan error: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": result.ActionsFound,
		"message":   fmt.Sprintf("Processed %d action item(s)", result.ActionsFound),
	})
}

func (s *Server) handleEmailCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	connections, err := s.db.GetActiveConnections(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(connections) == 0 {
		writeError(w, http.StatusBadRequest, "no email connections found")
		return
	}

	type countEntry struct {
		ConnectionID int64  `json:"connectionId"`
		EmailAddress string `json:"emailAddress"`
		Unread       int64  `json:"unread"`
	}
	counts := make([]countEntry, 0, len(connections))
	var total int64
	for i := range connections {
		conn := &connections[i]
		n, err := s.unread(r.Context(), conn)
		if err != nil {
			log.Printf("Unread count failed for connection %d: %v", conn.ID, err)
			continue
		}
		counts = append(counts, countEntry{ConnectionID: conn.ID, EmailAddress: conn.EmailAddress, Unread: n})
		total += n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":       total,
		"connections": counts,
	})
}

func (s *Server) handleScheduleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		UserID       int64  `json:"userId"`
		ConnectionID int64  `json:"connectionId"`
		ScheduledFor string `json:"scheduledFor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == 0 || body.ConnectionID == 0 {
		writeError(w, http.StatusBadRequest, "userId and connectionId are required")
		return
	}

	when := time.Now().UTC()
	if body.ScheduledFor != "" {
		parsed, err := time.Parse(time.RFC3339, body.ScheduledFor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "scheduledFor must be RFC 3339")
			return
		}
		when = parsed.UTC()
	}

	conn, err := s.db.GetConnection(body.ConnectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if conn == nil || conn.UserID != body.UserID {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if !conn.IsActive {
		writeError(w, http.StatusBadRequest, "connection is not active")
		return
	}

	scanID, err := s.db.ScheduleScan(body.UserID, body.ConnectionID, database.FormatTime(when))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"scanId":       scanID,
		"scheduledFor": database.FormatTime(when),
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var status *string
	if v := r.URL.Query().Get("status"); v != "" {
		if !validStatus(v) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &v
	}

	actions, err := s.db.ListActionItems(userID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"actions": actionsJSON(actions)})
}

func (s *Server) handleActionUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/actions/")
	actionID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || actionID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	var body struct {
		UserID       int64   `json:"userId"`
		Status       string  `json:"status"`
		SnoozedUntil *string `json:"snoozedUntil"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if !validStatus(body.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if body.Status == "snoozed" && body.SnoozedUntil == nil {
		writeError(w, http.StatusBadRequest, "snoozedUntil is required when snoozing")
		return
	}
	if body.SnoozedUntil != nil {
		if _, err := time.Parse(time.RFC3339, *body.SnoozedUntil); err != nil {
			writeError(w, http.StatusBadRequest, "snoozedUntil must be RFC 3339")
			return
		}
	}

	action, err := s.db.GetActionItem(actionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if action == nil || action.UserID != body.UserID {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}

	if err := s.db.UpdateActionStatus(actionID, body.Status, body.SnoozedUntil); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	updated, err := s.db.GetActionItem(actionID)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": actionJSON(*updated)})
}

func (s *Server) handleBriefingToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	briefing, err := s.db.GetBriefing(userID, database.Today())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if briefing == nil {
		writeError(w, http.StatusNotFound, "no briefing for today")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"briefingDate": briefing.BriefingDate,
		"summary":      briefing.Summary,
		"actionCount":  briefing.ActionCount,
	})
}

func (s *Server) handleCronDailyScan(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeCron(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	processed, err := s.cron.RunDailyScans(r.Context(), time.Now())
	if err != nil {
		log.Printf("Daily scan cron error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "processed": processed})
}

func (s *Server) handleCronProcessScheduled(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeCron(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	processed, total, err := s.cron.ProcessDueScans(r.Context(), time.Now())
	if err != nil {
		log.Printf("Scheduled scan cron error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "processed": processed, "total": total})
}

func (s *Server) authorizeCron(r *http.Request) bool {
	if s.cronSecret == "" {
		return false
	}
	return r.Header.Get("Authorization") == "Bearer "+s.cronSecret
}

func queryUserID(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("userId")
	if v == "" {
		return 0, fmt.Errorf("userId is required")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid userId")
	}
	return id, nil
}

func validStatus(status string) bool {
	switch status {
	case "pending", "completed", "dismissed", "snoozed":
		return true
	}
	return false
}

func actionJSON(a database.ActionItem) map[string]any {
	return map[string]any{
		"id":             a.ID,
		"title":          a.Title,
		"description":    a.Description,
		"senderName":     a.SenderName,
		"senderEmail":    a.SenderEmail,
		"deadline":       a.Deadline,
		"deadlineSource": a.DeadlineSource,
		"priority":       a.Priority,
		"status":         a.Status,
		"snoozedUntil":   a.SnoozedUntil,
	}
}

func actionsJSON(actions []database.ActionItem) []map[string]any {
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionJSON(a))
	}
	return out
}
