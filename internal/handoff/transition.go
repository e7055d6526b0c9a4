package handoff

// transitionPlan is the write a status change resolves to.
type transitionPlan struct {
	Status      Status
	AssignedTo  *string
	Join        bool
	DeleteLeave bool
	Note        string
	Changed     bool
}

// planTransition validates change against the current row. The public side
// (anonymous actor) may only close a request or silently reopen a closed one.
func planTransition(current Request, change StatusChange) (transitionPlan, error) {
	actor := change.Actor
	anonymous := actor.Username == "" && !actor.Admin
	assignee := current.Assignee()

	switch change.Status {
	case StatusOpen:
		switch current.Status {
		case StatusClosed:
			if !change.SuppressCloseMessage && !actor.Admin {
				return transitionPlan{}, ErrInvalidTransition
			}
			return transitionPlan{
				Status:      StatusOpen,
				DeleteLeave: change.SuppressCloseMessage,
				Note:        change.Note,
				Changed:     true,
			}, nil
		case StatusAssigned:
			if anonymous {
				return transitionPlan{}, ErrInvalidTransition
			}
			if actor.Operator() && assignee != "" && assignee != actor.Username {
				return transitionPlan{}, ErrAssignedToOther
			}
			return transitionPlan{Status: StatusOpen, Note: change.Note, Changed: true}, nil
		default:
			return transitionPlan{Status: StatusOpen, Changed: current.AssignedTo != nil}, nil
		}

	case StatusAssigned:
		if actor.Username == "" || current.Status == StatusClosed {
			return transitionPlan{}, ErrInvalidTransition
		}
		if assignee == actor.Username && current.Status == StatusAssigned {
			return transitionPlan{Status: StatusAssigned, AssignedTo: current.AssignedTo}, nil
		}
		if assignee != "" && assignee != actor.Username && !actor.Admin {
			return transitionPlan{}, ErrAssignedToOther
		}
		operator := actor.Username
		return transitionPlan{
			Status:     StatusAssigned,
			AssignedTo: &operator,
			Join:       operator != assignee,
			Note:       change.Note,
			Changed:    true,
		}, nil

	case StatusClosed:
		if current.Status == StatusClosed {
			return transitionPlan{Status: StatusClosed, AssignedTo: current.AssignedTo}, nil
		}
		return transitionPlan{
			Status:     StatusClosed,
			AssignedTo: current.AssignedTo,
			Note:       change.Note,
			Changed:    true,
		}, nil

	default:
		return transitionPlan{}, ErrInvalidStatus
	}
}
