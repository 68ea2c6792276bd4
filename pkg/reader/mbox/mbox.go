// Package mbox implements an EmailSource over a local mbox export, such as
// the one produced by Google Takeout.
package mbox

import (
	"cmp"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-mbox"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/reader/gmail"
)

// defaultKeywords mirror the Gmail default query when no filter applies.
var defaultKeywords = []string{"receipt", "order", "invoice", "payment"}

// Source reads messages from an mbox file.
type Source struct {
	path   string
	logger *slog.Logger
}

// New creates a Source for the mbox file at path.
func New(path string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{path: path, logger: logger}
}

// Fetch returns the bodies of matching messages, newest first, at most
// q.MaxResults of them. Unparseable messages are logged and skipped.
func (s *Source) Fetch(ctx context.Context, q api.Query) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	return s.read(ctx, f, q)
}

type candidate struct {
	date time.Time
	body string
}

func (s *Source) read(ctx context.Context, r io.Reader, q api.Query) ([]string, error) {
	if q.Filter != nil && strings.TrimSpace(q.Filter.CustomQuery) != "" {
		s.logger.Warn("custom Gmail queries are not supported for mbox files, ignoring", "query", q.Filter.CustomQuery)
	}

	var (
		found []candidate
		total int
	)
	mr := mbox.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox: %w", err)
		}
		total++

		msg, err := mail.ReadMessage(raw)
		if err != nil {
			s.logger.Warn("skipping unparseable message", "index", total, "error", err)
			continue
		}

		c, ok, err := s.consider(msg, q)
		if err != nil {
			s.logger.Warn("skipping message", "index", total, "error", err)
			continue
		}
		if ok {
			found = append(found, c)
		}
	}

	slices.SortStableFunc(found, func(a, b candidate) int { return b.date.Compare(a.date) })
	if q.MaxResults > 0 && len(found) > q.MaxResults {
		found = found[:q.MaxResults]
	}

	bodies := make([]string, 0, len(found))
	for _, c := range found {
		bodies = append(bodies, c.body)
	}

	s.logger.Info("read mbox", "path", s.path, "messages", total, "matched", len(bodies))
	return bodies, nil
}

func (s *Source) consider(msg *mail.Message, q api.Query) (candidate, bool, error) {
	date, dateErr := msg.Header.Date()
	if !inRange(date, dateErr, q.Range) {
		return candidate{}, false, nil
	}

	parts := &bodyParts{}
	err := walk(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body, parts)
	if err != nil {
		return candidate{}, false, err
	}

	if !matches(msg.Header, parts.attachment, q.Filter) {
		return candidate{}, false, nil
	}

	body := parts.text()
	if body == "" {
		return candidate{}, false, nil
	}
	return candidate{date: date, body: body}, true, nil
}

func inRange(date time.Time, dateErr error, r api.DateRange) bool {
	if r.Start.IsZero() && r.End.IsZero() {
		return true
	}
	if dateErr != nil {
		return false
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if !r.Start.IsZero() && day.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && day.After(r.End) {
		return false
	}
	return true
}

// matches applies the sender, subject keyword, attachment and label
// predicates. With no predicates the default receipt keywords apply.
func matches(h mail.Header, hasAttachment bool, f *api.EmailFilterSettings) bool {
	subject := strings.ToLower(decodeHeader(h.Get("Subject")))

	var keywords []string
	constrained := false
	if f != nil {
		if sender := strings.TrimSpace(f.SenderEmail); sender != "" {
			constrained = true
			if !strings.Contains(strings.ToLower(h.Get("From")), strings.ToLower(sender)) {
				return false
			}
		}
		keywords = gmail.SplitKeywords(f.SubjectKeywords)
		if f.HasAttachment {
			constrained = true
			if !hasAttachment {
				return false
			}
		}
		if label := strings.TrimSpace(f.Label); label != "" {
			constrained = true
			if !hasLabel(h.Get("X-Gmail-Labels"), label) {
				return false
			}
		}
	}

	if len(keywords) == 0 {
		if constrained {
			return true
		}
		keywords = defaultKeywords
	}
	for _, k := range keywords {
		if strings.Contains(subject, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func hasLabel(header, label string) bool {
	for _, l := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(l), label) {
			return true
		}
	}
	return false
}

type bodyParts struct {
	plain      string
	html       string
	attachment bool
}

func (p *bodyParts) text() string {
	if s := strings.TrimSpace(p.plain); s != "" {
		return s
	}
	return strings.TrimSpace(gmail.StripTags(p.html))
}

func walk(contentType, transferEncoding string, r io.Reader, out *bodyParts) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading multipart: %w", err)
			}
			if isAttachment(p) {
				out.attachment = true
				continue
			}
			if err := walk(p.Header.Get("Content-Type"), p.Header.Get("Content-Transfer-Encoding"), p, out); err != nil {
				return err
			}
		}
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return nil
	}

	data, err := io.ReadAll(decodeCharset(params["charset"], decodeTransfer(transferEncoding, r)))
	if err != nil {
		return fmt.Errorf("reading %s part: %w", mediaType, err)
	}

	switch mediaType {
	case "text/plain":
		out.plain = cmp.Or(out.plain, string(data))
	case "text/html":
		out.html = cmp.Or(out.html, string(data))
	}
	return nil
}

func isAttachment(p *multipart.Part) bool {
	disposition, _, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	return err == nil && disposition == "attachment"
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func decodeCharset(charset string, r io.Reader) io.Reader {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return r
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return r
	}
	return enc.NewDecoder().Reader(r)
}

var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, err
		}
		return enc.NewDecoder().Reader(input), nil
	},
}

func decodeHeader(v string) string {
	if decoded, err := wordDecoder.DecodeHeader(v); err == nil {
		return decoded
	}
	return v
}

// newlineStripper drops CR and LF so base64 bodies wrapped at 76 columns decode.
type newlineStripper struct{ r io.Reader }

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		j := 0
		for _, b := range p[:c] {
			if b != '\r' && b != '\n' {
				p[j] = b
				j++
			}
		}
		if j > 0 || err != nil {
			return j, err
		}
	}
}
