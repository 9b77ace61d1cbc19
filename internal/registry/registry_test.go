package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callforge/switchboard/internal/domain"
	"github.com/callforge/switchboard/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent", "json")
}

func testSession(callID string) domain.CallSession {
	return domain.CallSession{
		CallID:      callID,
		TenantID:    "t-1",
		AgentID:     "agt-1",
		UserID:      "u-1",
		PhoneNumber: "+15551234567",
		Direction:   domain.DirectionOutbound,
		State:       domain.StateDialing,
		StartTime:   time.Now(),
	}
}

func TestCreateAndGet(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Create(testSession("c-1")))

	got, err := reg.Get("c-1")
	require.NoError(t, err)
	assert.Equal(t, "agt-1", got.AgentID)
	assert.Equal(t, domain.StateDialing, got.State)
	assert.Equal(t, 1, reg.Len())
}

func TestCreateDuplicate(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Create(testSession("c-1")))

	err := reg.Create(testSession("c-1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetNotFound(t *testing.T) {
	reg := New(testLog())
	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutateCommits(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Create(testSession("c-1")))

	err := reg.Mutate("c-1", func(s *domain.CallSession) error {
		s.State = domain.StateAnswered
		s.AnswerTime = time.Now()
		return nil
	})
	require.NoError(t, err)

	got, err := reg.Get("c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAnswered, got.State)
	assert.True(t, got.Answered())
}

func TestMutateErrorLeavesSessionUnchanged(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Create(testSession("c-1")))

	boom := errors.New("guard failed")
	err := reg.Mutate("c-1", func(s *domain.CallSession) error {
		s.State = domain.StateEnded
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := reg.Get("c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDialing, got.State)
}

func TestMutateNotFound(t *testing.T) {
	reg := New(testLog())
	err := reg.Mutate("missing", func(s *domain.CallSession) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Create(testSession("c-1")))

	assert.True(t, reg.Delete("c-1"))
	assert.False(t, reg.Delete("c-1"))
	assert.False(t, reg.Delete("never-existed"))
	assert.Equal(t, 0, reg.Len())
}

func TestMutateAfterDelete(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Create(testSession("c-1")))
	reg.Delete("c-1")

	err := reg.Mutate("c-1", func(s *domain.CallSession) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshot(t *testing.T) {
	reg := New(testLog())
	require.NoError(t, reg.Create(testSession("c-1")))
	require.NoError(t, reg.Create(testSession("c-2")))

	snap := reg.Snapshot()
	assert.Len(t, snap, 2)

	// Snapshot entries are copies; mutating them must not affect the store.
	snap[0].State = domain.StateEnded
	got, err := reg.Get(snap[0].CallID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.StateEnded, got.State)
}

func TestConcurrentMutateSerialized(t *testing.T) {
	reg := New(testLog())
	sess := testSession("c-1")
	sess.Muted = false
	require.NoError(t, reg.Create(sess))

	const workers = 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Mutate("c-1", func(s *domain.CallSession) error {
				s.Muted = !s.Muted
				return nil
			})
		}()
	}
	wg.Wait()

	// An even number of toggles under proper serialization lands back on false.
	got, err := reg.Get("c-1")
	require.NoError(t, err)
	assert.False(t, got.Muted)
}

func TestConcurrentCreateDelete(t *testing.T) {
	reg := New(testLog())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		id := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_ = reg.Create(testSession(id))
		}()
		go func() {
			defer wg.Done()
			reg.Delete(id)
		}()
	}
	wg.Wait()

	// No panics, and every remaining session is readable.
	for _, s := range reg.Snapshot() {
		_, err := reg.Get(s.CallID)
		assert.NoError(t, err)
	}
}
