package session

import "sync/atomic"

// ticket authorizes one session to mutate player state. Tickets are
// compared by identity.
type ticket struct {
	seq uint64
}

// tokenRegister holds the single current ticket. Issuing a ticket
// invalidates every earlier one at once.
type tokenRegister struct {
	current atomic.Pointer[ticket]
	seq     atomic.Uint64
}

func (r *tokenRegister) issue() *ticket {
	t := &ticket{seq: r.seq.Add(1)}
	r.current.Store(t)
	return t
}

func (r *tokenRegister) valid(t *ticket) bool {
	return t != nil && r.current.Load() == t
}

func (r *tokenRegister) clear() {
	r.current.Store(nil)
}
