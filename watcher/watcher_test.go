package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/inboxmesh/internal/testutil"
	"github.com/hupe1980/inboxmesh/mail"
	"github.com/hupe1980/inboxmesh/model"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int]()
	require.NoError(t, q.Push(1, 2))
	require.NoError(t, q.Push(3))
	assert.Equal(t, 3, q.Len())

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PopWaitsForPush(t *testing.T) {
	q := NewQueue[string]()
	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push("hello"))

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_PopHonoursContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue[int]()
	require.NoError(t, q.Push(7))
	q.Close()

	assert.ErrorIs(t, q.Push(8), ErrClosed)

	v, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

type fakeMailbox struct {
	mu      sync.Mutex
	history uint64
	added   map[uint64][]string
	emails  map[string]mail.Email
	err     error
}

func newMailbox(history uint64, emails ...mail.Email) *fakeMailbox {
	m := &fakeMailbox{history: history, added: map[uint64][]string{}, emails: map[string]mail.Email{}}
	for _, e := range emails {
		m.emails[e.ID] = e
	}
	return m
}

// deliver makes ids appear after history id from.
func (m *fakeMailbox) deliver(from uint64, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added[from] = append(m.added[from], ids...)
	m.history = from + 1
}

func (m *fakeMailbox) HistoryID(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history, m.err
}

func (m *fakeMailbox) NewMessages(_ context.Context, start uint64) ([]string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, start, m.err
	}
	var ids []string
	for h := start; h < m.history; h++ {
		ids = append(ids, m.added[h]...)
	}
	return ids, m.history, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, id string) (mail.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return mail.Email{}, fmt.Errorf("message %s not found", id)
	}
	return e, nil
}

type recordingIndexer struct {
	ids []string
	err error
}

func (r *recordingIndexer) IndexMessage(_ context.Context, e mail.Email) error {
	r.ids = append(r.ids, e.ID)
	return r.err
}

func TestGmailSource_FirstPollRecordsHistory(t *testing.T) {
	mb := newMailbox(100)
	src := NewGmailSource(mb)

	emails, err := src.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, emails)
	assert.Equal(t, uint64(100), src.HistoryID())
}

func TestGmailSource_NewMessages(t *testing.T) {
	mb := newMailbox(100,
		mail.Email{ID: "m1", Subject: "Lunch", Labels: []string{"INBOX", "to_schedule"}},
		mail.Email{ID: "m2", Subject: "Newsletter", Labels: []string{"INBOX"}},
		mail.Email{ID: "m3", Subject: "Invoice", Labels: []string{"Needs_Action"}},
	)
	idx := &recordingIndexer{err: mail.ErrNoEmbedder}
	src := NewGmailSource(mb, func(o *GmailSourceOptions) {
		o.Labels = []string{"needs_action", "to_schedule"}
		o.Indexer = idx
	})
	ctx := context.Background()

	_, err := src.Poll(ctx)
	require.NoError(t, err)

	mb.deliver(100, "m1", "m2", "m3")
	emails, err := src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, "m1", emails[0].ID)
	assert.Equal(t, "m3", emails[1].ID)
	assert.Equal(t, []string{"m1", "m2", "m3"}, idx.ids)
	assert.Equal(t, uint64(101), src.HistoryID())

	emails, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestGmailSource_StartHistoryID(t *testing.T) {
	mb := newMailbox(100, mail.Email{ID: "m1"})
	mb.deliver(100, "m1")
	src := NewGmailSource(mb, func(o *GmailSourceOptions) { o.StartHistoryID = 100 })

	emails, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "m1", emails[0].ID)
}

func TestGmailSource_FetchErrorKeepsPosition(t *testing.T) {
	mb := newMailbox(100)
	mb.deliver(100, "missing")
	src := NewGmailSource(mb, func(o *GmailSourceOptions) { o.StartHistoryID = 100 })

	_, err := src.Poll(context.Background())
	assert.ErrorContains(t, err, "missing")
	assert.Equal(t, uint64(100), src.HistoryID())
}

type stubSource struct {
	batches [][]mail.Email
	err     error
	mu      sync.Mutex
}

func (s *stubSource) Poll(context.Context) ([]mail.Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil, s.err
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, s.err
}

func TestWatcher_Poll(t *testing.T) {
	src := &stubSource{batches: [][]mail.Email{{{ID: "m1"}, {ID: "m2"}}}}
	q := NewQueue[mail.Email]()
	w, err := New(src, q)
	require.NoError(t, err)

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q.Len())
}

func TestWatcher_PollError(t *testing.T) {
	src := &stubSource{err: errors.New("quota exceeded")}
	w, err := New(src, NewQueue[mail.Email]())
	require.NoError(t, err)

	_, err = w.Poll(context.Background())
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(&stubSource{}, NewQueue[mail.Email](), func(o *Options) { o.Schedule = "every now and then" })
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestWatcher_Run(t *testing.T) {
	src := &stubSource{batches: [][]mail.Email{{{ID: "m1"}}}}
	q := NewQueue[mail.Email]()
	w, err := New(src, q, func(o *Options) { o.Schedule = "@every 1h" })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	popCtx, popCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer popCancel()
	e, err := q.Pop(popCtx)
	require.NoError(t, err)
	assert.Equal(t, "m1", e.ID)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

var testLabels = []LabelDescriptor{
	{Name: "needs_action", Description: "Requires a reply or a follow-up"},
	{Name: "to_schedule", Description: "Proposes a meeting or an event"},
	{Name: "informational", Description: "Nothing to do"},
}

func classifyStep(label, summary string) model.Step {
	return testutil.Call(ClassifyToolName, map[string]any{"classification": label, "summary": summary})
}

func newClassifier(t *testing.T, m model.Model, labeler Labeler) *Classifier {
	t.Helper()
	c, err := NewClassifier(m, labeler, testLabels)
	require.NoError(t, err)
	return c
}

func TestNewClassifier_NeedsLabels(t *testing.T) {
	_, err := NewClassifier(model.NewScriptedModel("scripted"), testutil.NewFakeMail(), nil)
	assert.ErrorContains(t, err, "at least one label")
}

func TestClassifier_AppliesLabel(t *testing.T) {
	fm := testutil.NewFakeMail(mail.Email{ID: "m1"})
	m := model.NewScriptedModel("scripted", classifyStep("needs_action", "Invoice due Friday"))
	c := newClassifier(t, m, fm)

	verdict, err := c.Classify(context.Background(), mail.Email{
		ID:      "m1",
		Sender:  "billing@example.com",
		Subject: "Invoice",
		Text:    "  Please pay by Friday.  ",
	})
	require.NoError(t, err)
	assert.Equal(t, Classification{Label: "needs_action", Summary: "Invoice due Friday"}, verdict)
	assert.Equal(t, []string{"AddLabel(m1,needs_action)"}, fm.Calls())

	stored, ok := fm.Email("m1")
	require.True(t, ok)
	assert.Equal(t, []string{"needs_action"}, stored.Labels)

	req := m.Requests()[0]
	assert.True(t, req.RequireTool)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, ClassifyToolName, req.Tools[0].Function.Name)
	require.Len(t, req.History, 1)
	assert.Equal(t, "From: billing@example.com\nSubject: Invoice\n\nPlease pay by Friday.", req.History[0].Text)
}

func TestClassifier_RejectsUnknownLabel(t *testing.T) {
	fm := testutil.NewFakeMail(mail.Email{ID: "m1"})
	m := model.NewScriptedModel("scripted", classifyStep("urgent", "?"))
	c := newClassifier(t, m, fm)

	_, err := c.Classify(context.Background(), mail.Email{ID: "m1"})
	require.Error(t, err)
	assert.Empty(t, fm.Calls())
}

func TestClassifier_RequiresToolCall(t *testing.T) {
	fm := testutil.NewFakeMail(mail.Email{ID: "m1"})
	m := model.NewScriptedModel("scripted", testutil.Say("looks important"))
	c := newClassifier(t, m, fm)

	_, err := c.Classify(context.Background(), mail.Email{ID: "m1"})
	assert.ErrorContains(t, err, "did not call "+ClassifyToolName)
	assert.Empty(t, fm.Calls())
}

func TestClassifier_Handles(t *testing.T) {
	c := newClassifier(t, model.NewScriptedModel("scripted"), testutil.NewFakeMail())
	assert.True(t, c.Handles("To_Schedule"))
	assert.False(t, c.Handles("INBOX"))
}

func TestGmailSource_ClassifiesBeforeFilter(t *testing.T) {
	emails := []mail.Email{
		{ID: "m1", Subject: "Offsite", Labels: []string{"INBOX"}},
		{ID: "m2", Subject: "Weekly digest", Labels: []string{"INBOX"}},
	}
	mb := newMailbox(100, emails...)
	fm := testutil.NewFakeMail(emails...)
	m := model.NewScriptedModel("scripted",
		classifyStep("to_schedule", "Offsite planning"),
		classifyStep("informational", "Digest"),
	)
	src := NewGmailSource(mb, func(o *GmailSourceOptions) {
		o.Labels = []string{"needs_action", "to_schedule"}
		o.StartHistoryID = 100
		o.Classifier = newClassifier(t, m, fm)
	})
	mb.deliver(100, "m1", "m2")

	got, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, []string{"INBOX", "to_schedule"}, got[0].Labels)
	assert.Equal(t, []string{"AddLabel(m1,to_schedule)", "AddLabel(m2,informational)"}, fm.Calls())
}

func TestGmailSource_SkipsClassifiedEmails(t *testing.T) {
	email := mail.Email{ID: "m1", Labels: []string{"INBOX", "Needs_Action"}}
	mb := newMailbox(100, email)
	m := model.NewScriptedModel("scripted")
	src := NewGmailSource(mb, func(o *GmailSourceOptions) {
		o.Labels = []string{"needs_action"}
		o.StartHistoryID = 100
		o.Classifier = newClassifier(t, m, testutil.NewFakeMail(email))
	})
	mb.deliver(100, "m1")

	got, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, m.Calls())
}

func TestGmailSource_ClassifyFailureFallsBackToLabels(t *testing.T) {
	emails := []mail.Email{
		{ID: "m1", Labels: []string{"to_schedule_manual"}},
		{ID: "m2", Labels: []string{"urgent"}},
	}
	mb := newMailbox(100, emails...)
	m := model.NewScriptedModel("scripted",
		testutil.Fail(errors.New("rate limited")),
		testutil.Fail(errors.New("rate limited")),
	)
	src := NewGmailSource(mb, func(o *GmailSourceOptions) {
		o.Labels = []string{"urgent"}
		o.StartHistoryID = 100
		o.Classifier = newClassifier(t, m, testutil.NewFakeMail(emails...))
	})
	mb.deliver(100, "m1", "m2")

	got, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, []string{"urgent"}, got[0].Labels)
	assert.Equal(t, 2, m.Calls())
	assert.Equal(t, uint64(101), src.HistoryID())
}

func backlogMail() *testutil.FakeMail {
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return testutil.NewFakeMail(
		mail.Email{ID: "old", Date: day.AddDate(0, 0, -5), Labels: []string{"needs_action"}},
		mail.Email{ID: "b1", Date: day, Labels: []string{"needs_action"}},
		mail.Email{ID: "b2", Date: day.Add(time.Hour), Labels: []string{"INBOX"}},
		mail.Email{ID: "b3", Date: day.AddDate(0, 0, 1), Labels: []string{"to_schedule"}},
	)
}

func TestGmailSource_Backlog(t *testing.T) {
	fm := backlogMail()
	src := NewGmailSource(newMailbox(100), func(o *GmailSourceOptions) {
		o.Labels = []string{"needs_action", "to_schedule"}
		o.Searcher = fm
	})
	since := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	got, err := src.Backlog(context.Background(), since, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, "b3", got[1].ID)
	assert.Equal(t, []string{"KeywordSearch()"}, fm.Calls())

	got, err = src.Backlog(context.Background(), since, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)

	assert.Equal(t, uint64(0), src.HistoryID())
}

func TestGmailSource_BacklogClassifies(t *testing.T) {
	fm := backlogMail()
	m := model.NewScriptedModel("scripted", classifyStep("to_schedule", "Coffee next week"))
	src := NewGmailSource(newMailbox(100), func(o *GmailSourceOptions) {
		o.Labels = []string{"to_schedule"}
		o.Searcher = fm
		o.Classifier = newClassifier(t, m, fm)
	})

	got, err := src.Backlog(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b2", got[0].ID)
	assert.Equal(t, "b3", got[1].ID)
	assert.Equal(t, 1, m.Calls())
	assert.Contains(t, fm.Calls(), "AddLabel(b2,to_schedule)")
}

func TestGmailSource_BacklogNeedsSearcher(t *testing.T) {
	src := NewGmailSource(newMailbox(100))
	_, err := src.Backlog(context.Background(), time.Now(), 0)
	assert.ErrorContains(t, err, "searchable mailbox")
}

func TestWatcher_Backlog(t *testing.T) {
	fm := backlogMail()
	src := NewGmailSource(newMailbox(100), func(o *GmailSourceOptions) {
		o.Labels = []string{"needs_action", "to_schedule"}
		o.Searcher = fm
	})
	q := NewQueue[mail.Email]()
	w, err := New(src, q)
	require.NoError(t, err)

	n, err := w.Backlog(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q.Len())

	e, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b1", e.ID)
}

func TestWatcher_BacklogUnsupported(t *testing.T) {
	w, err := New(&stubSource{}, NewQueue[mail.Email]())
	require.NoError(t, err)

	_, err = w.Backlog(context.Background(), time.Now(), 0)
	assert.ErrorContains(t, err, "has no backlog")
}
