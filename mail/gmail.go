package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// DefaultMaxResults caps keyword searches.
const DefaultMaxResults = 25

// ErrNoEmbedder is returned by SemanticSearch when no Embedder is configured.
var ErrNoEmbedder = errors.New("mail: semantic search requires an embedder")

// GmailStoreOptions configure a GmailStore.
type GmailStoreOptions struct {
	UserID     string
	MaxResults int64
	Location   *time.Location
	Index      Index
	Embedder   Embedder
	ChunkSize  int
	Observer   APIObserver

	ClientOptions []option.ClientOption
}

// GmailStore implements Store over the Gmail API. Semantic search runs
// against a local Index fed by Sync and IndexMessage.
type GmailStore struct {
	users      *gmail.UsersService
	userID     string
	maxResults int64
	loc        *time.Location
	index      Index
	embedder   Embedder
	chunkSize  int
	observer   APIObserver

	mu         sync.Mutex
	labelIDs   map[string]string
	labelNames map[string]string
}

var _ Store = (*GmailStore)(nil)

// NewGmailStore creates the Gmail service on an authenticated HTTP client.
func NewGmailStore(ctx context.Context, client *http.Client, optFns ...func(o *GmailStoreOptions)) (*GmailStore, error) {
	opts := GmailStoreOptions{
		UserID:     "me",
		MaxResults: DefaultMaxResults,
		Location:   time.Local,
		ChunkSize:  DefaultChunkSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Index == nil {
		opts.Index = NewMemoryIndex()
	}

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, opts.ClientOptions...)
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailStore{
		users:      svc.Users,
		userID:     opts.UserID,
		maxResults: opts.MaxResults,
		loc:        opts.Location,
		index:      opts.Index,
		embedder:   opts.Embedder,
		chunkSize:  opts.ChunkSize,
		observer:   opts.Observer,
	}, nil
}

// Index returns the store's semantic index.
func (s *GmailStore) Index() Index { return s.index }

// KeywordSearch runs a Gmail query built from keywords, an optional subject
// and an optional date range, and fetches the matching messages.
func (s *GmailStore) KeywordSearch(ctx context.Context, keywords, subject string, start, end *time.Time) ([]Email, error) {
	q := BuildQuery(keywords, subject, start, end)

	var ids []string
	err := s.observe(ctx, "messages.list", func() error {
		res, err := s.users.Messages.List(s.userID).Q(q).MaxResults(s.maxResults).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to search messages: %w", err)
		}
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.fetchAll(ctx, ids)
}

// SemanticSearch embeds the query and returns the k closest indexed
// e-mails within the optional date range.
func (s *GmailStore) SemanticSearch(ctx context.Context, query string, k int, start, end *time.Time) ([]Email, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if k <= 0 {
		k = DefaultSemanticK
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("failed to embed query: no vector returned")
	}

	return s.fetchAll(ctx, s.index.Search(vectors[0], k, start, end))
}

// AddLabel adds a label by name, creating a user label that does not exist.
func (s *GmailStore) AddLabel(ctx context.Context, id, label string) error {
	labelID, err := s.labelID(ctx, label, true)
	if err != nil {
		return err
	}
	return s.observe(ctx, "messages.modify", func() error {
		req := &gmail.ModifyMessageRequest{AddLabelIds: []string{labelID}}
		if _, err := s.users.Messages.Modify(s.userID, id, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to add label %q: %w", label, err)
		}
		return nil
	})
}

// RemoveLabel removes a label by name.
func (s *GmailStore) RemoveLabel(ctx context.Context, id, label string) error {
	labelID, err := s.labelID(ctx, label, false)
	if err != nil {
		return err
	}
	return s.observe(ctx, "messages.modify", func() error {
		req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{labelID}}
		if _, err := s.users.Messages.Modify(s.userID, id, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to remove label %q: %w", label, err)
		}
		return nil
	})
}

// Fetch loads a message and converts it to a cleaned Email.
func (s *GmailStore) Fetch(ctx context.Context, id string) (Email, error) {
	var msg *gmail.Message
	err := s.observe(ctx, "messages.get", func() error {
		var err error
		msg, err = s.users.Messages.Get(s.userID, id).Format("full").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get message %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return Email{}, err
	}

	names, err := s.labelNamesFor(ctx, msg.LabelIds)
	if err != nil {
		return Email{}, err
	}
	email := toEmail(msg, s.loc)
	email.Labels = names
	return email, nil
}

// HistoryID returns the mailbox's current history id.
func (s *GmailStore) HistoryID(ctx context.Context) (uint64, error) {
	var id uint64
	err := s.observe(ctx, "getProfile", func() error {
		p, err := s.users.GetProfile(s.userID).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to get profile: %w", err)
		}
		id = p.HistoryId
		return nil
	})
	return id, err
}

// NewMessages returns the ids of messages added since startID, in arrival
// order, together with the latest history id seen.
func (s *GmailStore) NewMessages(ctx context.Context, startID uint64) ([]string, uint64, error) {
	var (
		ids    []string
		latest = startID
	)
	err := s.observe(ctx, "history.list", func() error {
		call := s.users.History.List(s.userID).StartHistoryId(startID).HistoryTypes("messageAdded")
		return call.Pages(ctx, func(res *gmail.ListHistoryResponse) error {
			for _, h := range res.History {
				for _, added := range h.MessagesAdded {
					if added.Message != nil {
						ids = append(ids, added.Message.Id)
					}
				}
			}
			if res.HistoryId > latest {
				latest = res.HistoryId
			}
			return nil
		})
	})
	if err != nil {
		return nil, startID, fmt.Errorf("failed to list history: %w", err)
	}
	return Dedupe(ids), latest, nil
}

// IndexMessage embeds an e-mail into the semantic index.
func (s *GmailStore) IndexMessage(ctx context.Context, email Email) error {
	if s.embedder == nil {
		return ErrNoEmbedder
	}
	docs, err := Embed(ctx, s.embedder, email, s.chunkSize)
	if err != nil {
		return fmt.Errorf("failed to embed message %s: %w", email.ID, err)
	}
	s.index.Upsert(docs...)
	return nil
}

// Sync indexes up to limit recent messages matching query that are not yet
// in the index and reports how many were added.
func (s *GmailStore) Sync(ctx context.Context, query string, limit int64) (int, error) {
	var ids []string
	err := s.observe(ctx, "messages.list", func() error {
		res, err := s.users.Messages.List(s.userID).Q(query).MaxResults(limit).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range res.Messages {
			if !s.index.Contains(m.Id) {
				ids = append(ids, m.Id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	ids = Dedupe(ids)
	for i, id := range ids {
		email, err := s.Fetch(ctx, id)
		if err != nil {
			return i, err
		}
		if err := s.IndexMessage(ctx, email); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

func (s *GmailStore) fetchAll(ctx context.Context, ids []string) ([]Email, error) {
	emails := make([]Email, 0, len(ids))
	for _, id := range Dedupe(ids) {
		e, err := s.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, nil
}

func (s *GmailStore) labelID(ctx context.Context, name string, create bool) (string, error) {
	if err := s.loadLabels(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	id, ok := s.labelIDs[strings.ToLower(name)]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	if !create {
		return "", fmt.Errorf("unknown label %q", name)
	}

	var created *gmail.Label
	err := s.observe(ctx, "labels.create", func() error {
		var err error
		created, err = s.users.Labels.Create(s.userID, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to create label %q: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.labelIDs[strings.ToLower(created.Name)] = created.Id
	s.labelNames[created.Id] = created.Name
	s.mu.Unlock()
	return created.Id, nil
}

func (s *GmailStore) labelNamesFor(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.loadLabels(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.labelNames[id]; ok {
			names = append(names, n)
		} else {
			names = append(names, id)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *GmailStore) loadLabels(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.labelIDs != nil
	s.mu.Unlock()
	if loaded {
		return nil
	}

	var labels []*gmail.Label
	err := s.observe(ctx, "labels.list", func() error {
		res, err := s.users.Labels.List(s.userID).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to list labels: %w", err)
		}
		labels = res.Labels
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.labelIDs = make(map[string]string, len(labels))
	s.labelNames = make(map[string]string, len(labels))
	for _, l := range labels {
		s.labelIDs[strings.ToLower(l.Name)] = l.Id
		s.labelNames[l.Id] = l.Name
	}
	return nil
}

func (s *GmailStore) observe(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.observer != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.observer.RecordGoogleAPIOperation(ctx, "gmail", op, status, time.Since(start))
	}
	return err
}

// BuildQuery renders a Gmail search query.
func BuildQuery(keywords, subject string, start, end *time.Time) string {
	var parts []string
	if kw := strings.TrimSpace(keywords); kw != "" {
		parts = append(parts, kw)
	}
	if subj := strings.TrimSpace(subject); subj != "" {
		parts = append(parts, fmt.Sprintf("subject:(%s)", subj))
	}
	if start != nil {
		parts = append(parts, "after:"+start.Format("2006/01/02"))
	}
	if end != nil {
		// before: is exclusive of the given day.
		parts = append(parts, "before:"+end.AddDate(0, 0, 1).Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

func toEmail(msg *gmail.Message, loc *time.Location) Email {
	e := Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Date:     time.UnixMilli(msg.InternalDate).In(loc),
	}
	if msg.Payload == nil {
		e.Text = CleanText(msg.Snippet)
		return e
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			e.Sender = h.Value
		case "to", "cc":
			for _, r := range strings.Split(h.Value, ",") {
				if r = strings.TrimSpace(r); r != "" {
					e.Recipients = append(e.Recipients, r)
				}
			}
		case "subject":
			e.Subject = h.Value
		}
	}

	body, isHTML := extractBody(msg.Payload)
	if body == "" {
		body, isHTML = msg.Snippet, false
	}
	e.Text = CleanBody(body, isHTML)
	return e
}

// extractBody prefers the first text/plain part and falls back to the first
// text/html part.
func extractBody(root *gmail.MessagePart) (string, bool) {
	var plain, html string
	walkParts(root, func(p *gmail.MessagePart) {
		if p.Body == nil || p.Body.Data == "" {
			return
		}
		switch {
		case p.MimeType == "text/plain" && plain == "":
			plain = decodeBody(p.Body.Data)
		case p.MimeType == "text/html" && html == "":
			html = decodeBody(p.Body.Data)
		}
	})
	if plain != "" {
		return plain, false
	}
	return html, html != ""
}

func walkParts(p *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if p == nil {
		return
	}
	fn(p)
	for _, sub := range p.Parts {
		walkParts(sub, fn)
	}
}

func decodeBody(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
