package gateway

import (
	"errors"
	"strings"

	"github.com/callforge/switchboard/internal/callcontrol"
	"github.com/callforge/switchboard/internal/domain"
	"github.com/callforge/switchboard/internal/registry"
)

// registerRPCHandlers wires all WebSocket RPC methods.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("call.dial", s.rpcCallDial)
	s.Handle("call.answer", s.rpcCallAction(func(rc *RequestContext, callID string) error {
		return s.calls.Answer(rc.Client.Identity, callID)
	}))
	s.Handle("call.hold", s.rpcCallAction(func(rc *RequestContext, callID string) error {
		return s.calls.Hold(rc.Client.Identity, callID)
	}))
	s.Handle("call.unhold", s.rpcCallAction(func(rc *RequestContext, callID string) error {
		return s.calls.Unhold(rc.Client.Identity, callID)
	}))
	s.Handle("call.mute", s.rpcCallMute)
	s.Handle("call.transfer", s.rpcCallTransfer)
	s.Handle("call.hangup", s.rpcCallAction(func(rc *RequestContext, callID string) error {
		return s.calls.Hangup(rc.Client.Identity, callID)
	}))
	s.Handle("room.join", s.rpcRoomJoin)
	s.Handle("room.leave", s.rpcRoomLeave)
}

// errorCode maps call-control errors onto wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return "not_found"
	case errors.Is(err, callcontrol.ErrForbidden):
		return "forbidden"
	case errors.Is(err, callcontrol.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, callcontrol.ErrUnsupported):
		return "unsupported"
	default:
		return "internal"
	}
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:      "ok",
		Version:     s.version,
		Clients:     s.clients.Count(),
		ActiveCalls: s.sessions.Len(),
	})
}

// DialRequest is the params shape for call.dial.
type DialRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	LeadID      string `json:"leadId,omitempty"`
	CampaignID  string `json:"campaignId,omitempty"`
	QueueID     string `json:"queueId,omitempty"`
}

func (s *Server) rpcCallDial(rc *RequestContext) {
	var req DialRequest
	if err := rc.Params(&req); err != nil {
		rc.RespondError("invalid_params", "invalid dial params")
		return
	}
	if req.PhoneNumber == "" {
		rc.RespondError("invalid_params", "phoneNumber is required")
		return
	}

	callID, err := s.calls.Dial(rc.Client.Identity, callcontrol.DialParams{
		PhoneNumber: req.PhoneNumber,
		LeadID:      req.LeadID,
		CampaignID:  req.CampaignID,
		QueueID:     req.QueueID,
	})
	if err != nil {
		rc.RespondError(errorCode(err), err.Error())
		return
	}

	rc.Respond(map[string]string{"callId": callID})
}

// CallActionRequest is the common params shape for call lifecycle methods.
type CallActionRequest struct {
	CallID string `json:"callId"`
}

// rpcCallAction wraps the single-callID lifecycle methods that only differ
// in which call-control action they invoke.
func (s *Server) rpcCallAction(action func(rc *RequestContext, callID string) error) RequestHandler {
	return func(rc *RequestContext) {
		var req CallActionRequest
		if err := rc.Params(&req); err != nil || req.CallID == "" {
			rc.RespondError("invalid_params", "callId is required")
			return
		}
		if err := action(rc, req.CallID); err != nil {
			rc.RespondError(errorCode(err), err.Error())
			return
		}
		rc.Respond(map[string]bool{"ok": true})
	}
}

// MuteRequest is the params shape for call.mute.
type MuteRequest struct {
	CallID string `json:"callId"`
	Muted  bool   `json:"muted"`
}

func (s *Server) rpcCallMute(rc *RequestContext) {
	var req MuteRequest
	if err := rc.Params(&req); err != nil || req.CallID == "" {
		rc.RespondError("invalid_params", "callId is required")
		return
	}
	if err := s.calls.Mute(rc.Client.Identity, req.CallID, req.Muted); err != nil {
		rc.RespondError(errorCode(err), err.Error())
		return
	}
	rc.Respond(map[string]bool{"ok": true, "muted": req.Muted})
}

// TransferRequest is the params shape for call.transfer.
type TransferRequest struct {
	CallID string `json:"callId"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
}

func (s *Server) rpcCallTransfer(rc *RequestContext) {
	var req TransferRequest
	if err := rc.Params(&req); err != nil || req.CallID == "" || req.Target == "" {
		rc.RespondError("invalid_params", "callId and target are required")
		return
	}
	typ := callcontrol.TransferType(req.Type)
	if typ == "" {
		typ = callcontrol.TransferBlind
	}
	if err := s.calls.Transfer(rc.Client.Identity, req.CallID, req.Target, typ); err != nil {
		rc.RespondError(errorCode(err), err.Error())
		return
	}
	rc.Respond(map[string]bool{"ok": true})
}

// RoomRequest is the params shape for room.join and room.leave.
type RoomRequest struct {
	Room string `json:"room"`
}

// allowedRoom reports whether a client may join the named room. Tenant and
// dashboard rooms are restricted to the client's own tenant; queue and
// campaign rooms are open to any authenticated client.
func allowedRoom(room, tenantID string) bool {
	switch {
	case strings.HasPrefix(room, "queue:"), strings.HasPrefix(room, "campaign:"):
		return true
	case room == domain.TenantRoom(tenantID), room == domain.DashboardRoom(tenantID):
		return true
	default:
		return false
	}
}

func (s *Server) rpcRoomJoin(rc *RequestContext) {
	var req RoomRequest
	if err := rc.Params(&req); err != nil || req.Room == "" {
		rc.RespondError("invalid_params", "room is required")
		return
	}
	if !allowedRoom(req.Room, rc.Client.Identity.TenantID) {
		rc.RespondError("forbidden", "cannot join room: "+req.Room)
		return
	}

	s.hub.Join(req.Room, rc.Client)
	rc.Respond(map[string]any{"ok": true, "room": req.Room})
}

func (s *Server) rpcRoomLeave(rc *RequestContext) {
	var req RoomRequest
	if err := rc.Params(&req); err != nil || req.Room == "" {
		rc.RespondError("invalid_params", "room is required")
		return
	}

	// Leaving the tenant room would cut the client off from its own
	// call events, so it is refused.
	if req.Room == domain.TenantRoom(rc.Client.Identity.TenantID) {
		rc.RespondError("forbidden", "cannot leave tenant room")
		return
	}

	s.hub.Leave(req.Room, rc.Client)
	rc.Respond(map[string]any{"ok": true, "room": req.Room})
}
