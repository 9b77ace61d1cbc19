package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/callforge/switchboard/internal/domain"
)

// A nil store must be a complete no-op so the coordinator can run
// without Redis configured.
func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store

	s.SetAgentState("agt-1", domain.AgentOnCall)
	s.ClearAgent("agt-1")

	state, err := s.AgentState(context.Background(), "agt-1")
	assert.NoError(t, err)
	assert.Empty(t, state)

	assert.NoError(t, s.Close())
}

func TestAgentKey(t *testing.T) {
	assert.Equal(t, "presence:agent:agt-1", agentKey("agt-1"))
}
