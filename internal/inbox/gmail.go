package inbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/billflow/internal/model"
	"google.golang.org/api/gmail/v1"
)

// DefaultGmailUser is the Gmail API alias for the authenticated account.
const DefaultGmailUser = "me"

var errEnoughMessages = errors.New("enough messages")

// GmailOptions selects which messages a GmailSource returns.
type GmailOptions struct {
	User       string
	Query      string
	MaxResults int64
}

// GmailSource lists and fetches messages through the Gmail API.
type GmailSource struct {
	svc    *gmail.Service
	logger *slog.Logger
	opts   GmailOptions
}

// NewGmailSource wraps an authenticated Gmail service.
func NewGmailSource(svc *gmail.Service, opts GmailOptions, logger *slog.Logger) *GmailSource {
	if opts.User == "" {
		opts.User = DefaultGmailUser
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GmailSource{svc: svc, opts: opts, logger: logger}
}

// Fetch lists message ids matching the query, then fetches each message.
// Messages that fail to fetch are logged and skipped.
func (s *GmailSource) Fetch(ctx context.Context) ([]model.Message, error) {
	ids, err := s.listIDs(ctx)
	if err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}

		raw, err := s.svc.Users.Messages.Get(s.opts.User, id).Format("full").Context(ctx).Do()
		if err != nil {
			s.logger.Warn("failed to fetch gmail message", "id", id, "error", err)
			continue
		}
		msgs = append(msgs, ConvertMessage(raw))
	}

	s.logger.Info("fetched gmail messages", "query", s.opts.Query, "count", len(msgs))
	return msgs, nil
}

func (s *GmailSource) listIDs(ctx context.Context) ([]string, error) {
	call := s.svc.Users.Messages.List(s.opts.User).Context(ctx)
	if s.opts.Query != "" {
		call = call.Q(s.opts.Query)
	}
	if s.opts.MaxResults > 0 {
		call = call.MaxResults(s.opts.MaxResults)
	}

	var ids []string
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
			if s.opts.MaxResults > 0 && int64(len(ids)) >= s.opts.MaxResults {
				return errEnoughMessages
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughMessages) {
		return nil, fmt.Errorf("failed to list gmail messages: %w", err)
	}
	return ids, nil
}

// ConvertMessage maps a Gmail API message onto a model.Message. The body is
// the first text/plain part found.
func ConvertMessage(raw *gmail.Message) model.Message {
	msg := model.Message{
		ID:      raw.Id,
		Snippet: raw.Snippet,
	}
	if raw.InternalDate > 0 {
		msg.Date = time.UnixMilli(raw.InternalDate).UTC()
	}
	if raw.Payload == nil {
		return msg
	}

	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "subject":
			msg.Subject = h.Value
		}
	}
	msg.Body = plainTextBody(raw.Payload)
	return msg
}

func plainTextBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		text, err := decodeBase64URL(part.Body.Data)
		if err == nil {
			return text
		}
	}
	for _, child := range part.Parts {
		if text := plainTextBody(child); text != "" {
			return text
		}
	}
	return ""
}

// Gmail sends base64url, usually padded; some clients strip the padding.
func decodeBase64URL(s string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
	}
	return string(data), nil
}
