package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/mail"
)

// Source yields e-mails that arrived since the previous call.
type Source interface {
	Poll(ctx context.Context) ([]mail.Email, error)
}

// Mailbox is the part of mail.GmailStore the Gmail source reads from.
type Mailbox interface {
	HistoryID(ctx context.Context) (uint64, error)
	NewMessages(ctx context.Context, startID uint64) ([]string, uint64, error)
	Fetch(ctx context.Context, id string) (mail.Email, error)
}

// Searcher finds existing e-mails for the backlog pass.
type Searcher interface {
	KeywordSearch(ctx context.Context, keywords, subject string, start, end *time.Time) ([]mail.Email, error)
}

// BacklogSource yields e-mails already in the mailbox.
type BacklogSource interface {
	Backlog(ctx context.Context, since time.Time, limit int) ([]mail.Email, error)
}

// Indexer adds e-mails to the semantic index.
type Indexer interface {
	IndexMessage(ctx context.Context, email mail.Email) error
}

// GmailSourceOptions configure a GmailSource.
type GmailSourceOptions struct {
	// Labels keeps only e-mails carrying at least one of these label names,
	// compared case-insensitively. Empty keeps everything.
	Labels []string
	// StartHistoryID resumes from a known history id. Zero starts from the
	// mailbox's current id on the first poll.
	StartHistoryID uint64
	// Indexer, when set, embeds every new e-mail, matching or not.
	Indexer Indexer
	// Classifier, when set, labels every e-mail that carries none of its
	// labels yet, before the label filter runs.
	Classifier *Classifier
	// Searcher serves Backlog. It defaults to the mailbox when the mailbox
	// can search.
	Searcher Searcher
	Logger   logging.Logger
}

// GmailSource polls the Gmail history for added messages.
type GmailSource struct {
	mailbox    Mailbox
	labels     map[string]bool
	indexer    Indexer
	classifier *Classifier
	searcher   Searcher
	logger     logging.Logger
	lastID     uint64
}

// NewGmailSource creates a GmailSource over mailbox.
func NewGmailSource(mailbox Mailbox, optFns ...func(o *GmailSourceOptions)) *GmailSource {
	opts := GmailSourceOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	labels := make(map[string]bool, len(opts.Labels))
	for _, l := range opts.Labels {
		labels[strings.ToLower(l)] = true
	}

	searcher := opts.Searcher
	if searcher == nil {
		searcher, _ = mailbox.(Searcher)
	}

	return &GmailSource{
		mailbox:    mailbox,
		labels:     labels,
		indexer:    opts.Indexer,
		classifier: opts.Classifier,
		searcher:   searcher,
		logger:     logging.With(opts.Logger, "component", "watcher"),
		lastID:     opts.StartHistoryID,
	}
}

// HistoryID returns the last history id the source has seen.
func (s *GmailSource) HistoryID() uint64 { return s.lastID }

// Poll implements Source. The first call on a source without a start id
// only records the current history id.
func (s *GmailSource) Poll(ctx context.Context) ([]mail.Email, error) {
	if s.lastID == 0 {
		id, err := s.mailbox.HistoryID(ctx)
		if err != nil {
			return nil, err
		}
		s.lastID = id
		s.logger.Info("watcher.started", "history_id", id)
		return nil, nil
	}

	ids, latest, err := s.mailbox.NewMessages(ctx, s.lastID)
	if err != nil {
		return nil, err
	}

	var out []mail.Email
	for _, id := range ids {
		email, err := s.mailbox.Fetch(ctx, id)
		if err != nil {
			return out, fmt.Errorf("fetch new message %s: %w", id, err)
		}
		if email, ok := s.admit(ctx, email); ok {
			out = append(out, email)
		}
	}

	s.lastID = latest
	return out, nil
}

// Backlog implements BacklogSource: e-mails received since the given time,
// newest first as the searcher returns them, indexed, classified and
// filtered like new mail. limit caps the result; zero means no cap.
func (s *GmailSource) Backlog(ctx context.Context, since time.Time, limit int) ([]mail.Email, error) {
	if s.searcher == nil {
		return nil, errors.New("watcher: backlog needs a searchable mailbox")
	}
	found, err := s.searcher.KeywordSearch(ctx, "", "", &since, nil)
	if err != nil {
		return nil, fmt.Errorf("search backlog: %w", err)
	}

	var out []mail.Email
	for _, email := range found {
		if limit > 0 && len(out) == limit {
			break
		}
		if email, ok := s.admit(ctx, email); ok {
			out = append(out, email)
		}
	}
	s.logger.Info("watcher.backlog", "since", since.Format(time.DateOnly), "found", len(found), "kept", len(out))
	return out, nil
}

// admit indexes and classifies email and reports whether it passes the
// label filter. Index and classification failures are logged; the e-mail
// is then judged on the labels it already has.
func (s *GmailSource) admit(ctx context.Context, email mail.Email) (mail.Email, bool) {
	if s.indexer != nil {
		if err := s.indexer.IndexMessage(ctx, email); err != nil && !errors.Is(err, mail.ErrNoEmbedder) {
			s.logger.Warn("watcher.index.failed", "email_id", email.ID, "error", err)
		}
	}
	if s.classifier != nil && !s.classified(email) {
		verdict, err := s.classifier.Classify(ctx, email)
		if err != nil {
			s.logger.Warn("watcher.classify.failed", "email_id", email.ID, "error", err)
		} else {
			email.Labels = append(append([]string(nil), email.Labels...), verdict.Label)
		}
	}
	if !s.matches(email) {
		s.logger.Debug("watcher.email.skipped", "email_id", email.ID)
		return email, false
	}
	return email, true
}

func (s *GmailSource) classified(e mail.Email) bool {
	for _, l := range e.Labels {
		if s.classifier.Handles(l) {
			return true
		}
	}
	return false
}

func (s *GmailSource) matches(e mail.Email) bool {
	if len(s.labels) == 0 {
		return true
	}
	for _, l := range e.Labels {
		if s.labels[strings.ToLower(l)] {
			return true
		}
	}
	return false
}

var (
	_ Source        = (*GmailSource)(nil)
	_ BacklogSource = (*GmailSource)(nil)
)
