package handoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }

func TestPlanTransition(t *testing.T) {
	alice := Viewer{Username: "alice"}
	bob := Viewer{Username: "bob"}
	admin := Viewer{Username: "root", Admin: true}
	public := Viewer{}

	open := Request{ID: 1, Status: StatusOpen}
	heldByAlice := Request{ID: 2, Status: StatusAssigned, AssignedTo: strPtr("alice")}
	closed := Request{ID: 3, Status: StatusClosed, AssignedTo: strPtr("alice")}

	cases := []struct {
		name    string
		current Request
		change  StatusChange
		wantErr error
		want    transitionPlan
	}{
		{"operator takes open", open, StatusChange{Status: StatusAssigned, Actor: alice}, nil,
			transitionPlan{Status: StatusAssigned, AssignedTo: strPtr("alice"), Join: true, Changed: true}},
		{"assignee re-assigns is a no-op", heldByAlice, StatusChange{Status: StatusAssigned, Actor: alice}, nil,
			transitionPlan{Status: StatusAssigned, AssignedTo: strPtr("alice")}},
		{"other operator cannot take", heldByAlice, StatusChange{Status: StatusAssigned, Actor: bob}, ErrAssignedToOther, transitionPlan{}},
		{"admin takes over", heldByAlice, StatusChange{Status: StatusAssigned, Actor: admin}, nil,
			transitionPlan{Status: StatusAssigned, AssignedTo: strPtr("root"), Join: true, Changed: true}},
		{"public cannot assign", open, StatusChange{Status: StatusAssigned, Actor: public}, ErrInvalidTransition, transitionPlan{}},
		{"closed cannot be assigned", closed, StatusChange{Status: StatusAssigned, Actor: admin}, ErrInvalidTransition, transitionPlan{}},
		{"assignee releases", heldByAlice, StatusChange{Status: StatusOpen, Actor: alice}, nil,
			transitionPlan{Status: StatusOpen, Changed: true}},
		{"other operator cannot release", heldByAlice, StatusChange{Status: StatusOpen, Actor: bob}, ErrAssignedToOther, transitionPlan{}},
		{"public cannot unassign", heldByAlice, StatusChange{Status: StatusOpen, Actor: public}, ErrInvalidTransition, transitionPlan{}},
		{"reopen closed needs suppress", closed, StatusChange{Status: StatusOpen, Actor: public}, ErrInvalidTransition, transitionPlan{}},
		{"silent return reopens", closed, StatusChange{Status: StatusOpen, Actor: public, SuppressCloseMessage: true}, nil,
			transitionPlan{Status: StatusOpen, DeleteLeave: true, Changed: true}},
		{"admin reopens", closed, StatusChange{Status: StatusOpen, Actor: admin}, nil,
			transitionPlan{Status: StatusOpen, Changed: true}},
		{"close open with note", open, StatusChange{Status: StatusClosed, Actor: public, Note: UserLeftText}, nil,
			transitionPlan{Status: StatusClosed, Note: UserLeftText, Changed: true}},
		{"close assigned keeps assignee", heldByAlice, StatusChange{Status: StatusClosed, Actor: alice}, nil,
			transitionPlan{Status: StatusClosed, AssignedTo: strPtr("alice"), Changed: true}},
		{"close closed is a no-op", closed, StatusChange{Status: StatusClosed, Actor: public, Note: UserLeftText}, nil,
			transitionPlan{Status: StatusClosed, AssignedTo: strPtr("alice")}},
		{"unknown status", open, StatusChange{Status: "pending", Actor: admin}, ErrInvalidStatus, transitionPlan{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := planTransition(tc.current, tc.change)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseStatusAndSender(t *testing.T) {
	status, err := ParseStatus(" Assigned ")
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, status)
	_, err = ParseStatus("done")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	sender, err := ParseSender("agent")
	require.NoError(t, err)
	assert.Equal(t, SenderAgent, sender)
	_, err = ParseSender("bot")
	assert.ErrorIs(t, err, ErrInvalidSender)
}
