package handoff

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for local runs and tests. A single mutex
// serializes every operation, which gives Claim the same conditional-write
// semantics as the Postgres UPDATE.
type MemoryStore struct {
	mu        sync.Mutex
	requests  map[int64]*Request
	messages  map[int64][]Message
	nextReqID int64
	nextMsgID int64
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[int64]*Request),
		messages: make(map[int64][]Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Escalate(_ context.Context, rec EscalationRecord) (EscalationOutcome, error) {
	if strings.TrimSpace(rec.ConversationID) == "" {
		return EscalationOutcome{}, ErrMissingConversation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*Request
	for _, req := range s.requests {
		if req.ConversationID == rec.ConversationID && req.Status.Active() {
			active = append(active, req)
		}
	}
	sort.Slice(active, func(i, j int) bool { return newerFirst(*active[i], *active[j]) })

	var outcome EscalationOutcome
	if len(active) > 1 {
		for _, older := range active[1:] {
			older.Status = StatusClosed
			outcome.Superseded = append(outcome.Superseded, older.ID)
		}
	}

	var target *Request
	if len(active) > 0 {
		target = active[0]
	} else {
		s.nextReqID++
		target = &Request{
			ID:             s.nextReqID,
			ConversationID: rec.ConversationID,
			Status:         StatusOpen,
			CreatedAt:      s.now(),
		}
		s.requests[target.ID] = target
		outcome.Created = true
	}
	target.RiskScore = copyInt(rec.RiskScore)
	target.CrisisType = copyString(rec.CrisisType)
	target.UserStatus = strings.TrimSpace(rec.UserStatus)
	target.Channel = strings.TrimSpace(rec.Channel)
	target.Summary = append([]byte(nil), rec.Summary...)
	if len(target.Summary) == 0 {
		target.Summary = nil
	}
	outcome.RequestID = target.ID

	s.appendLocked(target.ID, SenderSystem, EscalationCreatedText)
	return outcome, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	out := s.viewLocked(req)
	return &out, nil
}

func (s *MemoryStore) Active(_ context.Context, conversationID string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *Request
	for _, req := range s.requests {
		if req.ConversationID != conversationID || !req.Status.Active() {
			continue
		}
		if found == nil || newerFirst(*req, *found) {
			found = req
		}
	}
	if found == nil {
		return nil, nil
	}
	out := s.viewLocked(found)
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, 0, len(s.requests))
	for _, req := range s.requests {
		if filter.Visible(*req) {
			out = append(out, s.viewLocked(req))
		}
	}
	SortForQueue(out, filter.Status != nil)
	return out, nil
}

func (s *MemoryStore) Claim(_ context.Context, id int64, operator string) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ClaimAlreadyAssigned, ErrRequestNotFound
	}
	switch {
	case req.Status == StatusClosed:
		return ClaimClosed, nil
	case req.AssignedTo == nil:
		op := operator
		req.AssignedTo = &op
		req.Status = StatusAssigned
		s.appendLocked(id, SenderSystem, JoinedText(operator))
		return ClaimClaimed, nil
	case *req.AssignedTo == operator:
		return ClaimAlreadyYours, nil
	default:
		return ClaimAlreadyAssigned, nil
	}
}

func (s *MemoryStore) SetStatus(_ context.Context, id int64, change StatusChange) (StatusUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return StatusUpdate{}, ErrRequestNotFound
	}
	plan, err := planTransition(*req, change)
	if err != nil {
		return StatusUpdate{}, err
	}
	update := StatusUpdate{PreviousStatus: req.Status, PreviousAssignee: req.Assignee()}
	if plan.Changed {
		if req.Status == StatusClosed && plan.Status.Active() && s.otherActiveLocked(req) {
			return StatusUpdate{}, fmt.Errorf("%w: conversation has another active request", ErrInvalidTransition)
		}
		req.Status = plan.Status
		req.AssignedTo = copyString(plan.AssignedTo)
		if plan.DeleteLeave {
			kept := s.messages[id][:0]
			for _, msg := range s.messages[id] {
				if msg.Sender == SenderSystem && msg.Text == UserLeftText {
					continue
				}
				kept = append(kept, msg)
			}
			s.messages[id] = kept
		}
		if plan.Join {
			s.appendLocked(id, SenderSystem, JoinedText(*plan.AssignedTo))
		}
		if plan.Note != "" {
			s.appendLocked(id, SenderSystem, plan.Note)
		}
	}
	out := s.viewLocked(req)
	update.Request = &out
	return update, nil
}

func (s *MemoryStore) otherActiveLocked(req *Request) bool {
	for _, other := range s.requests {
		if other.ID != req.ID && other.ConversationID == req.ConversationID && other.Status.Active() {
			return true
		}
	}
	return false
}

func (s *MemoryStore) AppendMessage(_ context.Context, requestID int64, sender Sender, text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[requestID]; !ok {
		return Message{}, ErrRequestNotFound
	}
	return s.appendLocked(requestID, sender, text), nil
}

func (s *MemoryStore) Messages(_ context.Context, requestID, afterID int64) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, msg := range s.messages[requestID] {
		if msg.ID > afterID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *MemoryStore) appendLocked(requestID int64, sender Sender, text string) Message {
	s.nextMsgID++
	msg := Message{
		ID:        s.nextMsgID,
		RequestID: requestID,
		Sender:    sender,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.messages[requestID] = append(s.messages[requestID], msg)
	return msg
}

// viewLocked copies the request and fills the last-message fields.
func (s *MemoryStore) viewLocked(req *Request) Request {
	out := *req
	out.RiskScore = copyInt(req.RiskScore)
	out.CrisisType = copyString(req.CrisisType)
	out.AssignedTo = copyString(req.AssignedTo)
	out.Summary = append([]byte(nil), req.Summary...)
	if len(out.Summary) == 0 {
		out.Summary = nil
	}
	if msgs := s.messages[req.ID]; len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		id, sender, at := last.ID, last.Sender, last.CreatedAt
		out.LastMessageID, out.LastMessageSender, out.LastMessageAt = &id, &sender, &at
	}
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
