package filter

import "sync"

// Record is the extracted view of one BGP UPDATE that the filter store
// tests against the compiled rule set (spec §3, "extracted update record").
// internal/extract builds these; filter never parses XML itself.
type Record struct {
	V4Prefixes []string // sorted, deduplicated "A.B.C.D/m"
	V6Prefixes []string // sorted, deduplicated "addr/m"
	TerminalAS int      // 0 means "none" — AS 0 is not a valid public ASN
}

// Store holds one compiled, immutable rule set. The zero value is usable
// (Init is implicit); Load replaces its contents wholesale.
//
// After Load returns, Store is safe for concurrent read-only use by any
// number of goroutines calling Matches — nothing below mutates shared state
// again until the next Load, and Load is only ever called once at startup
// by the supervisor.
type Store struct {
	mu sync.RWMutex

	v4Rules   []Rule
	v6Rules   []Rule
	asSet     map[int]struct{}
	hostAddrs map[string][4]byte
	v4Index   *octetNode
}

// New returns an empty, loaded store — equivalent to calling Init on a
// zero Store.
func New() *Store {
	s := &Store{}
	s.Init()
	return s
}

// Init clears any prior state. Idempotent.
func (s *Store) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v4Rules = nil
	s.v6Rules = nil
	s.asSet = make(map[int]struct{})
	s.hostAddrs = make(map[string][4]byte)
	s.v4Index = newOctetNode()
}

// replace installs a freshly parsed (and optionally aggregated) rule set.
// Called once by Load.
func (s *Store) replace(v4, v6 []Rule, as map[int]struct{}, hosts map[string][4]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := newOctetNode()
	for _, r := range v4 {
		idx.insert(r)
	}

	s.v4Rules = v4
	s.v6Rules = v6
	s.asSet = as
	s.hostAddrs = hosts
	s.v4Index = idx
}

// CountV4 returns the number of compiled IPv4 prefix rules.
func (s *Store) CountV4() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.v4Rules)
}

// CountV6 returns the number of compiled IPv6 prefix rules.
func (s *Store) CountV6() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.v6Rules)
}

// CountAS returns the number of distinct AS numbers in the rule set.
func (s *Store) CountAS() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.asSet)
}

// CountHost returns the number of bare host addresses in the rule set.
func (s *Store) CountHost() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hostAddrs)
}

// Total returns CountV4+CountV6+CountAS+CountHost, per the consistency
// invariant in spec §8.
func (s *Store) Total() int {
	return s.CountV4() + s.CountV6() + s.CountAS() + s.CountHost()
}
