// Package domain defines the core call-session entities shared across
// the coordinator.
package domain

import "time"

// CallState is the lifecycle state of a call session. States only move
// forward; a session never leaves StateEnded.
type CallState string

const (
	StateDialing  CallState = "dialing"
	StateRinging  CallState = "ringing"
	StateAnswered CallState = "answered"
	StateHeld     CallState = "held"
	StateEnded    CallState = "ended"
)

// Direction indicates who originated the call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// AgentState is the seat state broadcast alongside call transitions.
type AgentState string

const (
	AgentAvailable AgentState = "available"
	AgentOnCall    AgentState = "on_call"
	AgentOnHold    AgentState = "on_hold"
)

// CallSession is the in-memory record of one live telephone interaction
// between an agent and an external party. CallID, TenantID, AgentID and
// Direction are immutable after creation; only the call control handler
// mutates State.
type CallSession struct {
	CallID      string    `json:"callId"`
	TenantID    string    `json:"tenantId"`
	AgentID     string    `json:"agentId"`
	UserID      string    `json:"userId"`
	PhoneNumber string    `json:"phoneNumber"`
	LeadID      string    `json:"leadId,omitempty"`
	CampaignID  string    `json:"campaignId,omitempty"`
	QueueID     string    `json:"queueId,omitempty"`
	Direction   Direction `json:"direction"`
	State       CallState `json:"state"`
	StartTime   time.Time `json:"startTime"`
	AnswerTime  time.Time `json:"answerTime,omitzero"`
	EndTime     time.Time `json:"endTime,omitzero"`
	Muted       bool      `json:"muted"`
}

// Answered reports whether the call reached the answered state at some point.
func (s *CallSession) Answered() bool {
	return !s.AnswerTime.IsZero()
}

// Duration returns the talk time in whole seconds. Calls that ended
// without being answered have a duration of zero.
func (s *CallSession) Duration() int64 {
	if s.AnswerTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	d := s.EndTime.Sub(s.AnswerTime)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// Age returns how long the session has existed.
func (s *CallSession) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}
