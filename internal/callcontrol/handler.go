// Package callcontrol implements the call-session state machine. It
// validates ownership and preconditions, mutates the session registry,
// and fans out persistence and broadcast side effects.
package callcontrol

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/callforge/switchboard/internal/auth"
	"github.com/callforge/switchboard/internal/callstore"
	"github.com/callforge/switchboard/internal/domain"
	"github.com/callforge/switchboard/internal/logging"
	"github.com/callforge/switchboard/internal/presence"
	"github.com/callforge/switchboard/internal/registry"
)

var (
	// ErrForbidden is returned when the requester is not the session's
	// agent, or is not logged in as an agent at all.
	ErrForbidden = errors.New("not your call")

	// ErrInvalidState is returned when the requested transition is not
	// allowed from the session's current state.
	ErrInvalidState = errors.New("invalid call state for action")

	// ErrUnsupported is returned for transfer types the coordinator does
	// not implement.
	ErrUnsupported = errors.New("transfer type not supported")
)

// Broadcaster is the slice of the hub the handler needs.
type Broadcaster interface {
	Publish(event string, payload any, rooms ...string)
}

// Persister receives fire-and-forget durable writes.
type Persister interface {
	Insert(rec callstore.Record)
	MarkAnswered(callID string, answerTime time.Time)
	MarkCompleted(callID string, endTime time.Time, durationSecs int64)
}

// Handler applies agent-initiated call-control actions.
type Handler struct {
	reg  *registry.Registry
	hub  Broadcaster
	rec  Persister
	pres *presence.Store
	log  *logging.Logger

	ringingDelay time.Duration
	now          func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithPresence mirrors agent state changes into Redis.
func WithPresence(p *presence.Store) Option {
	return func(h *Handler) { h.pres = p }
}

// WithRingingDelay overrides how long after dial the ringing transition fires.
func WithRingingDelay(d time.Duration) Option {
	return func(h *Handler) { h.ringingDelay = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a call control handler.
func New(reg *registry.Registry, hub Broadcaster, rec Persister, log *logging.Logger, opts ...Option) *Handler {
	h := &Handler{
		reg:          reg,
		hub:          hub,
		rec:          rec,
		log:          log.Sub("callcontrol"),
		ringingDelay: 2 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// DialParams describe an outbound dial request.
type DialParams struct {
	PhoneNumber string
	LeadID      string
	CampaignID  string
	QueueID     string
}

// Dial creates a new outbound call session owned by the requesting agent
// and schedules the dialing→ringing timer. Returns the new call ID.
func (h *Handler) Dial(id auth.Identity, p DialParams) (string, error) {
	if !id.IsAgent() {
		return "", ErrForbidden
	}

	now := h.now()
	sess := domain.CallSession{
		CallID:      uuid.New().String(),
		TenantID:    id.TenantID,
		AgentID:     id.AgentID,
		UserID:      id.UserID,
		PhoneNumber: p.PhoneNumber,
		LeadID:      p.LeadID,
		CampaignID:  p.CampaignID,
		QueueID:     p.QueueID,
		Direction:   domain.DirectionOutbound,
		State:       domain.StateDialing,
		StartTime:   now,
	}

	if err := h.reg.Create(sess); err != nil {
		return "", err
	}

	h.rec.Insert(callstore.Record{
		ID:          sess.CallID,
		TenantID:    sess.TenantID,
		AgentID:     sess.AgentID,
		UserID:      sess.UserID,
		LeadID:      sess.LeadID,
		CampaignID:  sess.CampaignID,
		QueueID:     sess.QueueID,
		Direction:   string(sess.Direction),
		PhoneNumber: sess.PhoneNumber,
		StartTime:   sess.StartTime,
	})

	h.publishCall(sess, "call:started", map[string]any{
		"callId":      sess.CallID,
		"agentId":     sess.AgentID,
		"phoneNumber": sess.PhoneNumber,
		"direction":   sess.Direction,
		"leadId":      sess.LeadID,
		"campaignId":  sess.CampaignID,
		"state":       sess.State,
	})
	h.publishAgentState(sess, domain.AgentAvailable, domain.AgentOnCall)

	time.AfterFunc(h.ringingDelay, func() { h.fireRinging(sess.CallID) })

	h.log.Info().
		Str("callId", sess.CallID).
		Str("agentId", sess.AgentID).
		Str("phone", sess.PhoneNumber).
		Msg("call dialing")

	return sess.CallID, nil
}

// fireRinging is the deferred dialing→ringing transition. It re-checks
// that the session still exists and is still dialing; a call hung up or
// answered first makes this a silent no-op.
func (h *Handler) fireRinging(callID string) {
	var snap domain.CallSession
	err := h.reg.Mutate(callID, func(s *domain.CallSession) error {
		if s.State != domain.StateDialing {
			return ErrInvalidState
		}
		s.State = domain.StateRinging
		snap = *s
		return nil
	})
	if err != nil {
		// Stale timer: the session moved on or is gone.
		return
	}

	h.publishCall(snap, "call:ringing", map[string]any{
		"callId":  snap.CallID,
		"agentId": snap.AgentID,
	})
}

// Answer transitions dialing|ringing → answered and stamps the answer time.
func (h *Handler) Answer(id auth.Identity, callID string) error {
	snap, err := h.transition(id, callID, func(s *domain.CallSession) error {
		if s.State != domain.StateDialing && s.State != domain.StateRinging {
			return ErrInvalidState
		}
		s.State = domain.StateAnswered
		s.AnswerTime = h.now()
		return nil
	})
	if err != nil {
		return err
	}

	h.rec.MarkAnswered(callID, snap.AnswerTime)
	h.publishCall(snap, "call:answered", map[string]any{
		"callId":     snap.CallID,
		"agentId":    snap.AgentID,
		"answerTime": snap.AnswerTime,
	})
	return nil
}

// Hold transitions answered → held.
func (h *Handler) Hold(id auth.Identity, callID string) error {
	snap, err := h.transition(id, callID, func(s *domain.CallSession) error {
		if s.State != domain.StateAnswered {
			return ErrInvalidState
		}
		s.State = domain.StateHeld
		return nil
	})
	if err != nil {
		return err
	}

	h.publishCall(snap, "call:held", map[string]any{
		"callId":   snap.CallID,
		"agentId":  snap.AgentID,
		"isOnHold": true,
	})
	h.publishAgentState(snap, domain.AgentOnCall, domain.AgentOnHold)
	return nil
}

// Unhold transitions held → answered.
func (h *Handler) Unhold(id auth.Identity, callID string) error {
	snap, err := h.transition(id, callID, func(s *domain.CallSession) error {
		if s.State != domain.StateHeld {
			return ErrInvalidState
		}
		s.State = domain.StateAnswered
		return nil
	})
	if err != nil {
		return err
	}

	h.publishCall(snap, "call:held", map[string]any{
		"callId":   snap.CallID,
		"agentId":  snap.AgentID,
		"isOnHold": false,
	})
	h.publishAgentState(snap, domain.AgentOnHold, domain.AgentOnCall)
	return nil
}

// Mute sets the muted flag. Valid in any live state; no broadcast.
func (h *Handler) Mute(id auth.Identity, callID string, muted bool) error {
	_, err := h.transition(id, callID, func(s *domain.CallSession) error {
		s.Muted = muted
		return nil
	})
	return err
}

// TransferType selects the transfer semantics.
type TransferType string

const (
	TransferBlind TransferType = "blind"
	TransferWarm  TransferType = "warm"
)

// Transfer performs a blind transfer: the target is announced to the
// tenant room and the telephony path completes the handoff. The session
// state is unchanged and the call remains owned by the original agent.
// Warm transfer is not implemented.
func (h *Handler) Transfer(id auth.Identity, callID, target string, typ TransferType) error {
	if typ == TransferWarm {
		return ErrUnsupported
	}
	if typ != TransferBlind {
		return ErrUnsupported
	}

	snap, err := h.transition(id, callID, func(s *domain.CallSession) error {
		if s.State != domain.StateAnswered {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.publishCall(snap, "call:transfer", map[string]any{
		"callId":  snap.CallID,
		"agentId": snap.AgentID,
		"target":  target,
		"type":    typ,
	})

	h.log.Info().
		Str("callId", callID).
		Str("target", target).
		Msg("blind transfer announced")
	return nil
}

// Hangup ends the call from any live state, persists the final record,
// broadcasts call:ended, and removes the session. Duration is whole
// seconds of talk time, zero for calls that were never answered.
func (h *Handler) Hangup(id auth.Identity, callID string) error {
	var prevState domain.CallState
	snap, err := h.transition(id, callID, func(s *domain.CallSession) error {
		prevState = s.State
		s.State = domain.StateEnded
		s.EndTime = h.now()
		return nil
	})
	if err != nil {
		return err
	}

	// Only the caller that actually removes the entry fires the terminal
	// side effects; a concurrent reaper sweep makes this a no-op.
	if !h.reg.Delete(callID) {
		return nil
	}

	duration := snap.Duration()
	h.rec.MarkCompleted(callID, snap.EndTime, duration)
	h.publishCall(snap, "call:ended", map[string]any{
		"callId":   snap.CallID,
		"agentId":  snap.AgentID,
		"duration": duration,
	})
	h.publishAgentState(snap, agentStateFor(prevState), domain.AgentAvailable)

	h.log.Info().
		Str("callId", callID).
		Int64("duration", duration).
		Msg("call ended")
	return nil
}

// transition runs a guarded mutation: existence, then ownership, then the
// action-specific guard inside fn. Returns a snapshot of the committed
// session.
func (h *Handler) transition(id auth.Identity, callID string, fn func(*domain.CallSession) error) (domain.CallSession, error) {
	if !id.IsAgent() {
		return domain.CallSession{}, ErrForbidden
	}

	var snap domain.CallSession
	err := h.reg.Mutate(callID, func(s *domain.CallSession) error {
		if s.AgentID != id.AgentID {
			return ErrForbidden
		}
		if err := fn(s); err != nil {
			return err
		}
		snap = *s
		return nil
	})
	if err != nil {
		return domain.CallSession{}, err
	}
	return snap, nil
}

// publishCall fans a call event out to every room scoped to the session.
func (h *Handler) publishCall(s domain.CallSession, event string, payload any) {
	rooms := []string{domain.TenantRoom(s.TenantID), domain.DashboardRoom(s.TenantID)}
	if s.QueueID != "" {
		rooms = append(rooms, domain.QueueRoom(s.QueueID))
	}
	if s.CampaignID != "" {
		rooms = append(rooms, domain.CampaignRoom(s.CampaignID))
	}
	h.hub.Publish(event, payload, rooms...)
}

func (h *Handler) publishAgentState(s domain.CallSession, prev, next domain.AgentState) {
	h.hub.Publish("agent:state-changed", map[string]any{
		"agentId":       s.AgentID,
		"previousState": prev,
		"newState":      next,
	}, domain.TenantRoom(s.TenantID), domain.DashboardRoom(s.TenantID))
	h.pres.SetAgentState(s.AgentID, next)
}

// agentStateFor maps a call state to the seat state it implies.
func agentStateFor(state domain.CallState) domain.AgentState {
	if state == domain.StateHeld {
		return domain.AgentOnHold
	}
	return domain.AgentOnCall
}
