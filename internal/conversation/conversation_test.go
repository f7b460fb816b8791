package conversation

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendOnly(t *testing.T) {
	log := NewLog(0)
	log.Append(Turn{Role: RoleUser, Content: "q1"})
	log.Append(Turn{Role: RoleAssistant, Content: "a1"})

	turns := log.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.False(t, turns[0].At.IsZero())

	turns[0].Content = "mutated"
	assert.Equal(t, "q1", log.Turns()[0].Content)
}

func TestLogKeepsNewestTurns(t *testing.T) {
	log := NewLog(3)
	for i := range 5 {
		log.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("q%d", i)})
	}
	assert.Equal(t, 3, log.Len())
	var contents []string
	for _, turn := range log.Turns() {
		contents = append(contents, turn.Content)
	}
	assert.Equal(t, []string{"q2", "q3", "q4"}, contents)
}

func TestStoreCreateStartsWithGreeting(t *testing.T) {
	store := NewStore(StoreConfig{})
	session, err := store.Create("Please ask me any question about the Employees database")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)

	transcript := session.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, RoleAssistant, transcript[0].Role)

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)

	bare, err := store.Create("")
	require.NoError(t, err)
	assert.Empty(t, bare.Transcript())
	assert.Equal(t, 2, store.Len())
}

func TestStoreGetUnknown(t *testing.T) {
	_, err := NewStore(StoreConfig{}).Get("nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

type fakeClock struct{ at time.Time }

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newClockedStore(cfg StoreConfig) (*Store, *fakeClock) {
	clock := &fakeClock{at: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := NewStore(cfg)
	store.now = clock.now
	return store, clock
}

func TestStoreEvictsLeastRecentlyUsedAtLimit(t *testing.T) {
	store, clock := newClockedStore(StoreConfig{MaxSessions: 3})
	var ids []string
	for range 3 {
		session, err := store.Create("hi")
		require.NoError(t, err)
		ids = append(ids, session.ID)
		clock.advance(time.Second)
	}
	_, err := store.Get(ids[0])
	require.NoError(t, err)
	clock.advance(time.Second)

	fourth, err := store.Create("hi")
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())

	_, err = store.Get(ids[1])
	assert.ErrorIs(t, err, ErrSessionNotFound)
	for _, id := range []string{ids[0], ids[2], fourth.ID} {
		_, err := store.Get(id)
		assert.NoError(t, err, id)
	}
}

func TestStoreNeverEvictsBusySessions(t *testing.T) {
	store := NewStore(StoreConfig{MaxSessions: 1})
	busy, err := store.Create("hi")
	require.NoError(t, err)

	err = busy.Do(func(*Log) error {
		_, err := store.Create("hi")
		return err
	})
	assert.ErrorIs(t, err, ErrTooManySessions)

	_, err = store.Create("hi")
	require.NoError(t, err)
	_, err = store.Get(busy.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStoreExpiresIdleSessions(t *testing.T) {
	store, clock := newClockedStore(StoreConfig{IdleTTL: time.Hour})
	stale, err := store.Create("")
	require.NoError(t, err)
	kept, err := store.Create("")
	require.NoError(t, err)

	clock.advance(45 * time.Minute)
	_, err = store.Get(kept.ID)
	require.NoError(t, err)
	clock.advance(30 * time.Minute)

	_, err = store.Get(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(kept.ID)
	assert.NoError(t, err)

	clock.advance(2 * time.Hour)
	_, err = store.Create("")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestSessionsAreIsolated(t *testing.T) {
	store := NewStore(StoreConfig{})
	a, err := store.Create("")
	require.NoError(t, err)
	b, err := store.Create("")
	require.NoError(t, err)

	require.NoError(t, a.Do(func(log *Log) error {
		log.Append(Turn{Role: RoleUser, Content: "only in a"})
		return nil
	}))
	assert.Len(t, a.Transcript(), 1)
	assert.Empty(t, b.Transcript())
}

func TestSessionDoSerializes(t *testing.T) {
	session, err := NewStore(StoreConfig{}).Create("")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = session.Do(func(log *Log) error {
				log.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("q%d", i)})
				log.Append(Turn{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)})
				return nil
			})
		}()
	}
	wg.Wait()

	turns := session.Transcript()
	require.Len(t, turns, 40)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, RoleUser, turns[i].Role)
		assert.Equal(t, RoleAssistant, turns[i+1].Role)
		assert.Equal(t, "a"+turns[i].Content[1:], turns[i+1].Content)
	}
}
