package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/inboxmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.CheckpointStore = (*InMemoryStore)(nil)

func checkpoint(id, thread string) core.Checkpoint {
	return core.Checkpoint{
		ID:         id,
		ThreadID:   thread,
		Graph:      "calendar",
		Node:       "ask_question",
		History:    core.NewHistory(core.NewHumanTurn("cancel my 3pm meeting")),
		Iterations: map[string]int{"agent": 1},
		Payload:    "Which meeting?",
	}
}

func TestInMemoryStore_TakeOnce(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Put(checkpoint("cp1", "t1")))

	cp, err := s.Take("cp1")
	require.NoError(t, err)
	assert.Equal(t, "ask_question", cp.Node)
	assert.False(t, cp.CreatedAt.IsZero())

	_, err = s.Take("cp1")
	assert.ErrorIs(t, err, core.ErrUnknownCheckpoint)
	assert.Equal(t, 0, s.Len())
}

func TestInMemoryStore_GetDoesNotConsume(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Put(checkpoint("cp1", "t1")))

	cp, err := s.Get("cp1")
	require.NoError(t, err)
	assert.Equal(t, "calendar", cp.Graph)

	cp.History.Append(core.NewHumanTurn("mutated"))
	again, err := s.Get("cp1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.History.Len())

	_, err = s.Take("cp1")
	require.NoError(t, err)
	_, err = s.Get("cp1")
	assert.ErrorIs(t, err, core.ErrUnknownCheckpoint)
}

func TestInMemoryStore_PutReplacesPendingOnThread(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Put(checkpoint("cp1", "t1")))
	require.NoError(t, s.Put(checkpoint("cp2", "t1")))

	_, err := s.Take("cp1")
	assert.ErrorIs(t, err, core.ErrUnknownCheckpoint)

	pending, ok := s.Pending("t1")
	require.True(t, ok)
	assert.Equal(t, "cp2", pending.ID)
	assert.Equal(t, 1, s.Len())
}

func TestInMemoryStore_Clear(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Put(checkpoint("cp1", "t1")))
	require.NoError(t, s.Put(checkpoint("cp2", "t2")))

	s.Clear("t1")
	_, ok := s.Pending("t1")
	assert.False(t, ok)
	assert.Equal(t, []string{"t2"}, s.Threads())

	s.Clear("missing")
	assert.Equal(t, 1, s.Len())
}

func TestInMemoryStore_IsolatesHistory(t *testing.T) {
	s := NewInMemoryStore()
	cp := checkpoint("cp1", "t1")
	require.NoError(t, s.Put(cp))

	cp.History[0].Text = "mutated"
	cp.Iterations["agent"] = 99

	pending, ok := s.Pending("t1")
	require.True(t, ok)
	assert.Equal(t, "cancel my 3pm meeting", pending.History[0].Text)
	assert.Equal(t, 1, pending.Iterations["agent"])
}

func TestInMemoryStore_RejectsIncomplete(t *testing.T) {
	s := NewInMemoryStore()
	assert.Error(t, s.Put(core.Checkpoint{ThreadID: "t"}))
	assert.Error(t, s.Put(core.Checkpoint{ID: "x"}))
}

func TestInMemoryStore_ConcurrentTakeOnce(t *testing.T) {
	s := NewInMemoryStore()
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Put(checkpoint(fmt.Sprintf("cp%d", i), fmt.Sprintf("t%d", i))))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := s.Take(fmt.Sprintf("cp%d", i)); err == nil {
					mu.Lock()
					taken++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, taken)
	assert.Equal(t, 0, s.Len())
}
