package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"

	"github.com/askoehler/inboxpilot/internal/config"
	"github.com/askoehler/inboxpilot/internal/database"
	"github.com/askoehler/inboxpilot/internal/extract"
	"github.com/askoehler/inboxpilot/internal/llm"
	"github.com/askoehler/inboxpilot/internal/mail"
	"github.com/askoehler/inboxpilot/internal/scan"
	"github.com/askoehler/inboxpilot/internal/schedule"
	"github.com/askoehler/inboxpilot/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "inboxpilot",
	Short:   "Turn your inbox into prioritized action items",
	Long:    "InboxPilot scans connected mailboxes, filters out noise, extracts action items with an LLM, and assembles a daily briefing.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("inboxpilot", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/inboxpilot/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure Google OAuth, the LLM provider, and scan defaults.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n\n", database.Today())
		fmt.Println("Accounts:")
		fmt.Printf("  Profiles: %d\n", stats.Profiles)
		fmt.Printf("  Active connections: %d\n", stats.ActiveConnections)
		fmt.Println("\nEmails:")
		fmt.Printf("  Processed: %d\n", stats.ProcessedEmails)
		fmt.Printf("  Actionable: %d\n", stats.ActionableEmails)
		fmt.Println("\nActions:")
		fmt.Printf("  Total: %d\n", stats.ActionItems)
		fmt.Printf("  Pending: %d\n", stats.PendingActions)
		fmt.Println("\nScheduling:")
		fmt.Printf("  Briefings: %d\n", stats.Briefings)
		fmt.Printf("  Pending scans: %d\n", stats.PendingScans)
		return nil
	},
}

// --- connect command ---

var (
	connectAccessToken  string
	connectRefreshToken string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a Gmail account",
	Long:  "Connect a Gmail account via OAuth. Pass --access-token/--refresh-token to reuse an existing grant; otherwise an authorization URL is printed and the code read from stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()

		accessToken, refreshToken := connectAccessToken, connectRefreshToken
		if refreshToken == "" {
			accessToken, refreshToken, err = authorize(ctx)
			if err != nil {
				return err
			}
		}

		client, err := mail.NewClient(ctx, googleClientID(), googleClientSecret(), mail.Credentials{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		}, nil)
		if err != nil {
			return err
		}
		address, err := client.Profile(ctx)
		if err != nil {
			return fmt.Errorf("verifying credentials: %w", err)
		}

		profile, err := db.GetProfileByEmail(address)
		if err != nil {
			return err
		}
		var userID int64
		if profile != nil {
			userID = profile.ID
		} else {
			userID, err = db.InsertProfile(address, nil, cfg.Scan.DefaultTimezone, cfg.Scan.DefaultHour)
			if err != nil {
				return err
			}
		}

		existing, err := db.GetConnectionByAddress(userID, address)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := db.ReactivateConnection(existing.ID, accessToken, refreshToken); err != nil {
				return err
			}
			fmt.Printf("Reconnected %s (connection %d)\n", address, existing.ID)
			return nil
		}

		connID, err := db.InsertConnection(userID, "gmail", address, accessToken, refreshToken)
		if err != nil {
			return err
		}
		fmt.Printf("Connected %s (connection %d)\n", address, connID)
		fmt.Printf("Daily scans run at %02d:00 %s. Run 'inboxpilot scan %s' to scan now.\n",
			cfg.Scan.DefaultHour, cfg.Scan.DefaultTimezone, address)
		return nil
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectAccessToken, "access-token", "", "OAuth access token")
	connectCmd.Flags().StringVar(&connectRefreshToken, "refresh-token", "", "OAuth refresh token")
}

/// authorize runs the manual OAuth code flow: print the URL, read the
// code back, exchange it for tokens.
func authorize(ctx context.Context) (accessToken, refreshToken string, err error) {
	conf := &oauth2.Config{
		ClientID:     googleClientID(),
		ClientSecret: googleClientSecret(),
		Endpoint:     google.Endpoint,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{gm.GmailReadonlyScope},
	}
	if conf.ClientID == "" || conf.ClientSecret == "" {
		return "", "", fmt.Errorf("set %s and %s to connect an account",
			cfg.Google.ClientIDEnv, cfg.Google.ClientSecretEnv)
	}

	url := conf.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Open this URL in your browser:\n\n  %s\n\nEnter the authorization code: ", url)

	reader := bufio.NewReader(os.Stdin)
	code, _ := reader.ReadString('\n')
	code = strings.TrimSpace(code)
	if code == "" {
		return "", "", fmt.Errorf("no authorization code entered")
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token.AccessToken, token.RefreshToken, nil
}

// --- disconnect command ---

var disconnectPurge bool

var disconnectCmd = &cobra.Command{
	Use:   "disconnect [email-address]",
	Short: "Disconnect a Gmail account",
	Long:  "Deactivate a connection so it is skipped by all scans. With --purge, the connection and everything derived from it (processed emails, action items, scheduled scans) is deleted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		address := args[0]
		profile, err := db.GetProfileByEmail(address)
		if err != nil {
			return err
		}
		if profile == nil {
			return fmt.Errorf("no profile for %s", address)
		}
		conn, err := db.GetConnectionByAddress(profile.ID, address)
		if err != nil {
			return err
		}
		if conn == nil {
			return fmt.Errorf("no connection for %s", address)
		}

		if disconnectPurge {
			if err := db.DeleteConnection(conn.ID); err != nil {
				return err
			}
			fmt.Printf("Purged %s and all derived data\n", address)
			return nil
		}

		if err := db.DeactivateConnection(conn.ID); err != nil {
			return err
		}
		fmt.Printf("Disconnected %s (data kept; reconnect with 'inboxpilot connect')\n", address)
		return nil
	},
}

func init() {
	disconnectCmd.Flags().BoolVar(&disconnectPurge, "purge", false, "Delete the connection and all derived data")
}

// --- scan command ---

var scanConnectionID int64

var scanCmd = &cobra.Command{
	Use:   "scan [email-address]",
	Short: "Scan connected mailboxes for action items now",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		scanner, err := buildScanner(db)
		if err != nil {
			return err
		}

		var profiles []database.Profile
		if len(args) == 1 {
			profile, err := db.GetProfileByEmail(args[0])
			if err != nil {
				return err
			}
			if profile == nil {
				return fmt.Errorf("no profile for %s", args[0])
			}
			profiles = []database.Profile{*profile}
		} else {
			profiles, err = db.GetAllProfiles()
			if err != nil {
				return err
			}
		}
		if len(profiles) == 0 {
			return fmt.Errorf("no profiles; run 'inboxpilot connect' first")
		}

		ctx := context.Background()
		for _, profile := range profiles {
			var connID *int64
			if scanConnectionID > 0 {
				connID = &scanConnectionID
			}

			fmt.Printf("Scanning %s...\n", profile.Email)
			result, err := scanner.ScanUser(ctx, profile.ID, connID)
			if err != nil {
				fmt.Printf("  Error: %v\n", err)
				if result == nil {
					continue
				}
			}
			fmt.Printf("  Messages listed: %d\n", result.EmailsSeen)
			fmt.Printf("  New emails processed: %d\n", result.EmailsNew)
			fmt.Printf("  Action items found: %d\n", result.ActionsFound)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().Int64Var(&scanConnectionID, "connection", 0, "Scan only this connection ID")
}

// --- schedule command ---

var (
	scheduleConnectionID int64
	scheduleAt           string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a one-off scan for a connection",
	Long:  "Queue a deferred scan. A new request supersedes any still-pending scan for the same connection. Omit --at to schedule for now (picked up by the next batch run).",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleConnectionID <= 0 {
			return fmt.Errorf("--connection is required")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		conn, err := db.GetConnection(scheduleConnectionID)
		if err != nil {
			return err
		}
		if conn == nil {
			return fmt.Errorf("connection %d not found", scheduleConnectionID)
		}
		if !conn.IsActive {
			return fmt.Errorf("connection %d is not active", scheduleConnectionID)
		}

		when := time.Now().UTC()
		if scheduleAt != "" {
			when, err = time.Parse(time.RFC3339, scheduleAt)
			if err != nil {
				return fmt.Errorf("invalid --at time (want RFC 3339, e.g. 2026-09-01T14:00:00Z): %w", err)
			}
			when = when.UTC()
		}

		scanID, err := db.ScheduleScan(conn.UserID, conn.ID, database.FormatTime(when))
		if err != nil {
			return err
		}
		fmt.Printf("Scheduled scan %d for %s at %s\n", scanID, conn.EmailAddress, database.FormatTime(when))
		return nil
	},
}

func init() {
	scheduleCmd.Flags().Int64Var(&scheduleConnectionID, "connection", 0, "Connection ID to scan")
	scheduleCmd.Flags().StringVar(&scheduleAt, "at", "", "When to run the scan (RFC 3339)")
}

// --- batch command ---

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one unattended scheduler pass",
	Long:  "Run the hourly scheduler work once: scan users whose local time matches their scan hour, then execute due deferred scans. Intended for cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		scanner, err := buildScanner(db)
		if err != nil {
			return err
		}
		sched := schedule.New(db, scanner, cfg.Scan.DefaultTimezone)
		ctx := context.Background()
		now := time.Now()

		daily, err := sched.RunDailyScans(ctx, now)
		if err != nil {
			return fmt.Errorf("daily scans: %w", err)
		}
		fmt.Printf("Daily scans: %d connection(s) scanned\n", daily)

		done, due, err := sched.ProcessDueScans(ctx, now)
		if err != nil {
			return fmt.Errorf("scheduled scans: %w", err)
		}
		fmt.Printf("Scheduled scans: %d of %d due completed\n", done, due)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		scanner, err := buildScanner(db)
		if err != nil {
			return err
		}
		sched := schedule.New(db, scanner, cfg.Scan.DefaultTimezone)

		unread := func(ctx context.Context, conn *database.Connection) (int64, error) {
			client, err := mailClient(ctx, db, conn)
			if err != nil {
				return 0, err
			}
			after := time.Now().Add(-time.Duration(cfg.Scan.LookbackHours) * time.Hour)
			if conn.LastSyncAt != nil && *conn.LastSyncAt != "" {
				if t := database.ParseTime(*conn.LastSyncAt); !t.IsZero() {
					after = t
				}
			}
			return client.UnreadCount(ctx, after)
		}

		cronSecret := os.Getenv(cfg.Server.CronSecretEnv)
		if cronSecret == "" {
			log.Printf("%s not set; cron endpoints disabled", cfg.Server.CronSecretEnv)
		}

		srv := server.New(db, scanner, sched, unread, cronSecret)
		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		fmt.Printf("Starting API server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return http.ListenAndServe(fmt.Sprintf(":%d", port), srv.Handler())
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- wiring helpers ---

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "inboxpilot.db")
	return database.Open(dbPath)
}

func googleClientID() string     { return os.Getenv(cfg.Google.ClientIDEnv) }
func googleClientSecret() string { return os.Getenv(cfg.Google.ClientSecretEnv) }

func mailClient(ctx context.Context, db *database.DB, conn *database.Connection) (*mail.Client, error) {
	onRefresh := func(accessToken, refreshToken string, _ time.Time) error {
		if refreshToken != "" {
			conn.RefreshToken = refreshToken
		}
		return db.UpdateConnectionTokens(conn.ID, accessToken, conn.RefreshToken)
	}
	return mail.NewClient(ctx, googleClientID(), googleClientSecret(), mail.Credentials{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
	}, onRefresh)
}

func buildScanner(db *database.DB) (*scan.Scanner, error) {
	provider := llm.CreateProvider(
		cfg.Extraction.Provider,
		cfg.Extraction.Model,
		cfg.Extraction.OllamaURL,
		cfg.Extraction.OpenAIModel,
		cfg.Extraction.APIKeyEnv,
	)
	if provider == nil {
		return nil, fmt.Errorf("no LLM provider available")
	}

	extractor := extract.New(provider, cfg.Extraction.BodyLimit)

	factory := func(ctx context.Context, conn *database.Connection, onRefresh mail.RefreshFunc) (scan.MailClient, error) {
		return mail.NewClient(ctx, googleClientID(), googleClientSecret(), mail.Credentials{
			AccessToken:  conn.AccessToken,
			RefreshToken: conn.RefreshToken,
		}, onRefresh)
	}

	return scan.New(db, factory, extractor, scan.Options{
		MaxResults:    cfg.Scan.MaxResults,
		LookbackHours: cfg.Scan.LookbackHours,
		RecordLimit:   cfg.Extraction.RecordLimit,
	}), nil
}
