package attendance

import (
	"fmt"
	"slices"
	"strings"
)

// CandidateOrder decides which users are kept when the registry holds more
// users than the verification request may carry.
type CandidateOrder string

// Candidate orders.
const (
	// OrderRegistration keeps the first registered users.
	OrderRegistration CandidateOrder = "registration"
	// OrderNewest keeps the most recently registered users.
	OrderNewest CandidateOrder = "newest"
)

// ParseCandidateOrder parses a candidate order name; empty means registration order.
func ParseCandidateOrder(s string) (CandidateOrder, error) {
	switch CandidateOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderRegistration:
		return OrderRegistration, nil
	case OrderNewest:
		return OrderNewest, nil
	default:
		return "", fmt.Errorf("unknown candidate order %q (supported: registration, newest)", s)
	}
}

// CandidatePool selects at most limit users from users (given in
// registration order) for one verification request. A limit <= 0 means no
// cap. The second return value is the number of users left out.
func CandidatePool(users []User, limit int, order CandidateOrder) ([]User, int) {
	if limit <= 0 || len(users) <= limit {
		return slices.Clone(users), 0
	}
	dropped := len(users) - limit
	if order == OrderNewest {
		return slices.Clone(users[dropped:]), dropped
	}
	return slices.Clone(users[:limit]), dropped
}
