package handoff

import "sort"

func statusRank(s Status) int {
	switch s {
	case StatusAssigned:
		return 1
	case StatusOpen:
		return 2
	default:
		return 3
	}
}

// Less is the operator queue order: assigned before open before closed; open
// requests by priority descending; then newest first.
func Less(a, b Request) bool {
	if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
		return ra < rb
	}
	if a.Status == StatusOpen {
		if pa, pb := a.Priority(), b.Priority(); pa != pb {
			return pa > pb
		}
	}
	return newerFirst(a, b)
}

func newerFirst(a, b Request) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SortForQueue orders requests in place. With a status filter the listing is
// only newest first.
func SortForQueue(requests []Request, filtered bool) {
	if filtered {
		sort.SliceStable(requests, func(i, j int) bool { return newerFirst(requests[i], requests[j]) })
		return
	}
	sort.SliceStable(requests, func(i, j int) bool { return Less(requests[i], requests[j]) })
}

// Visible reports whether the filter's viewer may see the request. Operators
// see open requests and the ones assigned to them.
func (f ListFilter) Visible(r Request) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if !f.Viewer.Operator() {
		return true
	}
	switch r.Status {
	case StatusOpen:
		return true
	case StatusAssigned:
		return r.Assignee() == f.Viewer.Username
	default:
		return false
	}
}
