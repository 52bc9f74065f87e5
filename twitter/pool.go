package twitter

import (
	"sync"
	"time"
)

// EndpointClass is the rate-limit bucket a request counts against. The
// remote tracks limits per resource path, so the pool does too.
type EndpointClass string

const (
	EndpointUsersLookup  EndpointClass = "/users/lookup"
	EndpointFollowerIds  EndpointClass = "/followers/ids"
	EndpointFriendIds    EndpointClass = "/friends/ids"
	EndpointUserTimeline EndpointClass = "/statuses/user_timeline"
	EndpointListsShow    EndpointClass = "/lists/show"
	EndpointListMembers  EndpointClass = "/lists/members"
	EndpointRateLimit    EndpointClass = "/application/rate_limit_status"
)

// rateWindow is the last known remaining/reset state for one
// credential x endpoint class pair.
type rateWindow struct {
	remaining int
	reset     time.Time
}

/*

CredentialPool hands out credentials for API calls, rotating round-robin and
tracking per credential x endpoint-class rate-limit state so exhausted
credentials are skipped until their window resets.

The pool performs no I/O itself: callers report what the remote said through
Observe (response headers) and MarkRateLimited (a 429), and the pool only
mutates its in-memory state. All state is process local.

*/
type CredentialPool struct {
	mu      sync.Mutex
	creds   []*Credential
	windows []map[EndpointClass]*rateWindow
	slot    map[*Credential]int
	next    int

	// now is swappable in tests.
	now func() time.Time
}

// NewCredentialPool builds a pool over creds, preserving order: rotation
// ties break toward the earliest added credential.
func NewCredentialPool(creds []*Credential) (*CredentialPool, error) {
	if len(creds) == 0 {
		return nil, &ConfigError{Reason: "credential pool needs at least one credential"}
	}
	pool := &CredentialPool{
		creds:   creds,
		windows: make([]map[EndpointClass]*rateWindow, len(creds)),
		slot:    make(map[*Credential]int, len(creds)),
		now:     time.Now,
	}
	for i, cred := range creds {
		pool.windows[i] = make(map[EndpointClass]*rateWindow)
		pool.slot[cred] = i
	}
	return pool, nil
}

// Size returns the number of credentials held.
func (p *CredentialPool) Size() int {
	return len(p.creds)
}

// Acquire returns a credential with capacity left for the endpoint class,
// rotating round-robin across usable credentials. When every credential is
// exhausted for the class it returns a *CapacityError carrying the earliest
// reset time among them.
func (p *CredentialPool) Acquire(class EndpointClass) (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.creds)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.usableLocked(idx, class) {
			p.next = (idx + 1) % n
			return p.creds[idx], nil
		}
	}

	capErr := &CapacityError{Class: class}
	for idx := 0; idx < n; idx++ {
		window := p.windows[idx][class]
		if window == nil {
			continue
		}
		if capErr.EarliestReset.IsZero() || window.reset.Before(capErr.EarliestReset) {
			capErr.EarliestReset = window.reset
		}
	}
	return nil, capErr
}

func (p *CredentialPool) usableLocked(idx int, class EndpointClass) bool {
	window := p.windows[idx][class]
	if window == nil || window.remaining > 0 {
		return true
	}
	if !p.now().Before(window.reset) {
		// The window rolled over, forget the stale state.
		delete(p.windows[idx], class)
		return true
	}
	return false
}

// MarkRateLimited records that the remote rejected a call on cred for the
// class, freezing it out until reset.
func (p *CredentialPool) MarkRateLimited(cred *Credential, class EndpointClass, reset time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.slot[cred]
	if !ok {
		return
	}
	if reset.IsZero() {
		// No server-supplied reset, assume a full 15 minute window.
		reset = p.now().Add(15 * time.Minute)
	}
	p.windows[idx][class] = &rateWindow{remaining: 0, reset: reset}
}

// Observe folds the rate headers of a successful response into the window
// state, so the pool rotates away from a credential BEFORE the remote starts
// rejecting it.
func (p *CredentialPool) Observe(cred *Credential, class EndpointClass, remaining int, reset time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.slot[cred]
	if !ok {
		return
	}
	p.windows[idx][class] = &rateWindow{remaining: remaining, reset: reset}
}

// WindowStatus is the reported state of one credential x class window.
type WindowStatus struct {
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// CredentialStatus is the pool's view of one credential.
type CredentialStatus struct {
	Label   string                          `json:"label"`
	Windows map[EndpointClass]*WindowStatus `json:"windows"`
}

// Snapshot reports the current window state for every credential. Only
// windows the pool has actually observed appear.
func (p *CredentialPool) Snapshot() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]CredentialStatus, 0, len(p.creds))
	for idx, cred := range p.creds {
		status := CredentialStatus{
			Label:   cred.Label,
			Windows: make(map[EndpointClass]*WindowStatus, len(p.windows[idx])),
		}
		for class, window := range p.windows[idx] {
			status.Windows[class] = &WindowStatus{Remaining: window.remaining, Reset: window.reset}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Credentials returns the held credentials in pool order, for callers that
// need to address each one individually (the rate-limit status report).
func (p *CredentialPool) Credentials() []*Credential {
	return p.creds
}
