package database

// Profile is a user of the system: one mailbox owner with scan preferences.
type Profile struct {
	ID          int64
	Email       string
	DisplayName *string
	Timezone    string
	ScanHour    int
	CreatedAt   *string
}

// Connection is one linked mailbox with its credential pair and sync watermark.
type Connection struct {
	ID           int64
	UserID       int64
	Provider     string
	EmailAddress string
	AccessToken  string
	RefreshToken string
	IsActive     bool
	LastSyncAt   *string
	CreatedAt    *string
}

// ProcessedEmail records one message ever seen for a connection.
// (ConnectionID, ExternalID) is unique and is the de-duplication key.
type ProcessedEmail struct {
	ID           int64
	UserID       int64
	ConnectionID int64
	ExternalID   string
	Subject      string
	Sender       string
	ReceivedAt   string
	ProcessedAt  *string
	IsActionable bool
	RawContent   *string
}

// ActionItem is one extracted task.
type ActionItem struct {
	ID             int64
	UserID         int64
	EmailID        int64
	Title          string
	Description    string
	SenderName     string
	SenderEmail    string
	Deadline       *string
	DeadlineSource string // "explicit", "inferred", or "none"
	Priority       string // "high", "medium", or "low"
	Status         string // "pending", "completed", "dismissed", or "snoozed"
	SnoozedUntil   *string
	CreatedAt      *string
}

// DailyBriefing is the per-day summary of newly found actions for a user.
// At most one row per (user, date).
type DailyBriefing struct {
	ID           int64
	UserID       int64
	BriefingDate string
	Summary      string
	ActionCount  int
	GeneratedAt  *string
}

// ScheduledScan is a user-requested deferred scan of one connection.
type ScheduledScan struct {
	ID           int64
	UserID       int64
	ConnectionID int64
	ScheduledFor string
	Status       string // "pending", "completed", or "failed"
	CreatedAt    *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Profiles          int
	ActiveConnections int
	ProcessedEmails   int
	ActionableEmails  int
	ActionItems       int
	PendingActions    int
	Briefings         int
	PendingScans      int
}
