package filter

import (
	"net"
	"strconv"
	"strings"
)

// Axis names which of the four match criteria (spec §4.1) produced a hit.
// Recorded by callers that need to know why an envelope matched, such as
// the audit sink.
type Axis string

const (
	AxisAS   Axis = "as"
	AxisV4   Axis = "v4"
	AxisHost Axis = "host"
	AxisV6   Axis = "v6"
)

// Matches implements the match algorithm of spec §4.1: true if the
// terminal AS is in the AS set, or any update prefix matches a compiled
// rule (mode-aware, IPv4 indexed / IPv6 linear), or any configured host
// address falls inside one of the update's own IPv4 prefixes.
func (s *Store) Matches(rec Record) bool {
	_, ok := s.MatchAxis(rec)
	return ok
}

// MatchAxis is Matches plus which axis produced the hit, checked in the
// same order Matches does (AS, then v4 prefix, then host, then v6 prefix) so
// the reported axis is always the first one that matched.
//
// A malformed entry in rec (a prefix string that doesn't parse) silently
// contributes no match on that axis, per spec §4.1's failure semantics —
// it is not an error, since extraction errors are expected to already have
// filtered those out upstream.
func (s *Store) MatchAxis(rec Record) (Axis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec.TerminalAS != 0 {
		if _, ok := s.asSet[rec.TerminalAS]; ok {
			return AxisAS, true
		}
	}

	for _, p := range rec.V4Prefixes {
		ip, mask, ok := parseV4Prefix(p)
		if !ok {
			continue
		}
		if s.matchV4(ip, mask) {
			return AxisV4, true
		}
	}

	if len(s.hostAddrs) > 0 {
		for _, p := range rec.V4Prefixes {
			pNet, pMask, ok := parseV4Prefix(p)
			if !ok {
				continue
			}
			for _, h := range s.hostAddrs {
				if containsHost(net.IP(h[:]), pNet, pMask) {
					return AxisHost, true
				}
			}
		}
	}

	for _, p := range rec.V6Prefixes {
		ip, mask, ok := parseV6Prefix(p)
		if !ok {
			continue
		}
		for _, r := range s.v6Rules {
			if r.matchPrefix(ip, mask) {
				return AxisV6, true
			}
		}
	}

	return "", false
}

func (s *Store) matchV4(ip net.IP, mask int) bool {
	for _, r := range s.v4Index.candidates(ip) {
		if r.matchPrefix(ip, mask) {
			return true
		}
	}
	return false
}

// parseV4Prefix parses "A.B.C.D/m" into a 4-byte network IP (host bits
// zeroed) and mask. Returns ok=false on any malformed input.
func parseV4Prefix(s string) (net.IP, int, bool) {
	addr, mask, ok := splitPrefix(s)
	if !ok {
		return nil, 0, false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, 0, false
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, 0, false
	}
	if mask < 0 || mask > 32 {
		return nil, 0, false
	}
	return maskNetwork(v4, mask), mask, true
}

// parseV6Prefix parses "addr/m" into a 16-byte network IP and mask.
func parseV6Prefix(s string) (net.IP, int, bool) {
	addr, mask, ok := splitPrefix(s)
	if !ok {
		return nil, 0, false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, 0, false
	}
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return nil, 0, false
	}
	if mask < 0 || mask > 128 {
		return nil, 0, false
	}
	return maskNetwork(v6, mask), mask, true
}

func splitPrefix(s string) (addr string, mask int, ok bool) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return "", 0, false
	}
	addr = s[:idx]
	m, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return addr, m, true
}
