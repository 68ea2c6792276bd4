// Package gmail implements an EmailSource backed by the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/client"
)

// Source lists and fetches messages from the authenticated user's mailbox.
type Source struct {
	client *gmail.Service
	logger *slog.Logger
}

// New creates a Source that calls Gmail through httpClient.
func New(ctx context.Context, httpClient *http.Client, logger *slog.Logger, opts ...option.ClientOption) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Source{client: svc, logger: logger}, nil
}

// Factory returns a constructor that builds a Source for a caller's bearer token.
func Factory(logger *slog.Logger, opts ...option.ClientOption) func(ctx context.Context, accessToken string) (api.EmailSource, error) {
	return func(ctx context.Context, accessToken string) (api.EmailSource, error) {
		httpClient, err := client.New(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		return New(ctx, httpClient, logger, opts...)
	}
}

// Fetch runs one search and returns the plain-text body of each hit, in the
// order Gmail listed them. A failed search is an error; a message that cannot
// be fetched is logged and skipped.
func (s *Source) Fetch(ctx context.Context, q api.Query) ([]string, error) {
	query := BuildQuery(q.Filter, q.Range)
	logger := s.logger.With("query", query)

	call := s.client.Users.Messages.List("me").Q(query).Context(ctx)
	if q.MaxResults > 0 {
		call = call.MaxResults(int64(q.MaxResults))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	logger.Info("found messages", "count", len(resp.Messages))

	bodies := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if q.MaxResults > 0 && len(bodies) >= q.MaxResults {
			break
		}

		body, err := s.fetchBody(ctx, m.Id)
		if err != nil {
			logger.Warn("failed to fetch message", "message_id", m.Id, "error", err)
			continue
		}
		if body == "" {
			logger.Debug("empty message body", "message_id", m.Id)
			continue
		}
		bodies = append(bodies, body)
	}

	return bodies, nil
}

func (s *Source) fetchBody(ctx context.Context, msgID string) (string, error) {
	msg, err := s.client.Users.Messages.Get("me", msgID).Format("full").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("getting message: %w", err)
	}
	if msg.Payload == nil {
		return "", nil
	}
	return strings.TrimSpace(extractBody(msg.Payload)), nil
}

// extractBody prefers the payload's own body, then the first text/plain part,
// then the first text/html part with tags removed, then the first nested part.
func extractBody(p *gmail.MessagePart) string {
	if p.Body != nil && p.Body.Data != "" {
		text := decodeData(p.Body.Data)
		if strings.HasPrefix(p.MimeType, "text/html") {
			text = StripTags(text)
		}
		return text
	}

	if part := firstPart(p.Parts, "text/plain"); part != nil {
		return decodeData(part.Body.Data)
	}
	if part := firstPart(p.Parts, "text/html"); part != nil {
		return StripTags(decodeData(part.Body.Data))
	}
	if len(p.Parts) > 0 {
		return extractBody(p.Parts[0])
	}
	return ""
}

func firstPart(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, part := range parts {
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			return part
		}
	}
	return nil
}

// decodeData decodes Gmail's base64url payloads, padded or not.
func decodeData(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}

var tagPattern = regexp.MustCompile(`<[^>]*>?`)

// StripTags removes anything that looks like an HTML tag.
func StripTags(html string) string {
	return tagPattern.ReplaceAllString(html, "")
}
