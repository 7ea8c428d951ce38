// Package mail adapts the Gmail API into the small surface the scan
// pipeline needs: list recent messages, fetch full bodies, count unread.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrAuthExpired marks credential failures that need a reconnect rather
// than a retry. Callers deactivate the connection when they see it.
var ErrAuthExpired = errors.New("mail: authorization expired")

// Credentials are the stored OAuth tokens for one connection.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// RefreshFunc is called when the token source mints a new access token,
// so the caller can persist the pair. refreshToken is empty when the
// provider did not rotate it; callers keep the stored one then. Errors
// are logged, not propagated: a failed save costs one extra refresh on
// the next scan.
type RefreshFunc func(accessToken, refreshToken string, expiry time.Time) error

// Client wraps an authenticated Gmail service for a single mailbox.
type Client struct {
	svc *gm.Service
}

type notifyTokenSource struct {
	src     oauth2.TokenSource
	current string
	onFresh RefreshFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.onFresh != nil && t.AccessToken != s.current {
		s.current = t.AccessToken
		if err := s.onFresh(t.AccessToken, t.RefreshToken, t.Expiry); err != nil {
			log.Printf("Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// NewClient builds a Gmail client from stored credentials. The access
// token is treated as expired when a refresh token is present, so the
// first call refreshes eagerly and onRefresh fires with the new token.
func NewClient(ctx context.Context, clientID, clientSecret string, creds Credentials, onRefresh RefreshFunc) (*Client, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}

	ts := &notifyTokenSource{
		src:     conf.TokenSource(ctx, token),
		current: creds.AccessToken,
		onFresh: onRefresh,
	}

	svc, err := gm.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListMessages fetches full messages received after the given time.
// Messages that fail to fetch individually are skipped with a log line;
// a failing list call is fatal for the whole scan.
func (c *Client) ListMessages(ctx context.Context, after time.Time, labelIDs []string, maxResults int64) ([]*Message, error) {
	call := c.svc.Users.Messages.List("me").
		Context(ctx).
		Q(fmt.Sprintf("after:%d", after.Unix())).
		MaxResults(maxResults)
	if len(labelIDs) > 0 {
		call = call.LabelIds(labelIDs...)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, classifyErr(err)
	}

	messages := make([]*Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := c.GetMessage(ctx, ref.Id)
		if err != nil {
			if errors.Is(err, ErrAuthExpired) {
				return nil, err
			}
			log.Printf("Skipping message %s: %v", ref.Id, err)
			continue
		}
		if msg != nil {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// GetMessage fetches one message with its full payload. A message
// deleted between list and fetch returns (nil, nil).
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	raw, err := c.svc.Users.Messages.Get("me", id).Context(ctx).Format("full").Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil, nil
		}
		return nil, classifyErr(err)
	}

	var headers []*gm.MessagePartHeader
	if raw.Payload != nil {
		headers = raw.Payload.Headers
	}

	from := headerValue(headers, "From")
	name, addr := ParseAddress(from)

	return &Message{
		ID:        raw.Id,
		ThreadID:  raw.ThreadId,
		Subject:   headerValue(headers, "Subject"),
		From:      from,
		FromName:  name,
		FromEmail: addr,
		To:        headerValue(headers, "To"),
		Date:      time.UnixMilli(raw.InternalDate),
		Snippet:   raw.Snippet,
		Body:      extractBody(raw.Payload),
		Labels:    raw.LabelIds,
	}, nil
}

// UnreadCount estimates how many unread inbox messages arrived after
// the given time. It is a hint for "is a scan worth running", not an
// exact figure.
func (c *Client) UnreadCount(ctx context.Context, after time.Time) (int64, error) {
	resp, err := c.svc.Users.Messages.List("me").
		Context(ctx).
		Q(fmt.Sprintf("is:unread after:%d", after.Unix())).
		LabelIds("INBOX").
		MaxResults(1).
		Do()
	if err != nil {
		return 0, classifyErr(err)
	}
	return resp.ResultSizeEstimate, nil
}

// Profile returns the email address the credentials belong to.
func (c *Client) Profile(ctx context.Context) (string, error) {
	prof, err := c.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", classifyErr(err)
	}
	return prof.EmailAddress, nil
}

// classifyErr maps credential failures to ErrAuthExpired. A revoked
// refresh token surfaces as an oauth2 "invalid_grant" retrieve error;
// a stale access token without a refresh token comes back as a 401.
func classifyErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 401 {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	return err
}
