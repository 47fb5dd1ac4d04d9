package filter

import (
	"strings"
	"testing"
)

func loadString(t *testing.T, s *Store, ruleFile string, aggregateRules bool) {
	t.Helper()
	if _, err := LoadFrom(s, strings.NewReader(ruleFile), aggregateRules); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
}

// Scenario A: AS match.
func TestScenarioASMatch(t *testing.T) {
	s := New()
	loadString(t, s, "as 53175\n", false)

	if !s.Matches(Record{TerminalAS: 53175}) {
		t.Errorf("expected AS 53175 to match")
	}
	if s.Matches(Record{TerminalAS: 1}) {
		t.Errorf("expected AS 1 to not match")
	}
}

// Scenario B: more-specific IPv4, only one axis needs to fire.
func TestScenarioBMoreSpecific(t *testing.T) {
	s := New()
	loadString(t, s, "ipv4 205.94.224.0/20 ms\n", false)

	rec := Record{V4Prefixes: []string{"205.94.224.0/20", "150.196.29.0/24"}}
	if !s.Matches(rec) {
		t.Errorf("expected match: first prefix is exactly the rule")
	}
}

// Scenario C: less-specific IPv4 with mode flip.
func TestScenarioCLessSpecific(t *testing.T) {
	s := New()
	loadString(t, s, "ipv4 10.0.0.0/8 ls\n", false)

	if !s.Matches(Record{V4Prefixes: []string{"10.0.0.0/8"}}) {
		t.Errorf("expected exact match under ls")
	}
	if s.Matches(Record{V4Prefixes: []string{"10.1.2.0/24"}}) {
		t.Errorf("expected no match: update is more specific than an ls rule")
	}

	s2 := New()
	loadString(t, s2, "ipv4 10.0.0.0/8 ms\n", false)
	if !s2.Matches(Record{V4Prefixes: []string{"10.1.2.0/24"}}) {
		t.Errorf("expected match once rule mode is ms")
	}
}

// Scenario D: IPv6 match.
func TestScenarioDIPv6(t *testing.T) {
	s := New()
	loadString(t, s, "ipv6 2a02:1378::/32 ls\n", false)

	if !s.Matches(Record{V6Prefixes: []string{"2a02:1378::/32"}}) {
		t.Errorf("expected ipv6 match")
	}
	if s.Matches(Record{V6Prefixes: []string{"2a02:9999::/32"}}) {
		t.Errorf("expected no match for unrelated ipv6 prefix")
	}
}

// Scenario E: aggregation collapses two /25 halves into one /24, which
// still matches a message for a more-specific sub-prefix.
func TestScenarioEAggregation(t *testing.T) {
	s := New()
	loadString(t, s, "ipv4 192.168.0.0/25 ms\nipv4 192.168.0.128/25 ms\n", true)

	if s.CountV4() != 1 {
		t.Fatalf("expected aggregation to collapse to 1 rule, got %d", s.CountV4())
	}
	if !s.Matches(Record{V4Prefixes: []string{"192.168.0.64/26"}}) {
		t.Errorf("expected 192.168.0.64/26 to still match after aggregation")
	}
}

func TestHostInPrefixMatch(t *testing.T) {
	s := New()
	loadString(t, s, "ipv4 10.1.2.3\n", false)

	if !s.Matches(Record{V4Prefixes: []string{"10.1.0.0/16"}}) {
		t.Errorf("expected host 10.1.2.3 inside announced 10.1.0.0/16 to match")
	}
	if s.Matches(Record{V4Prefixes: []string{"10.2.0.0/16"}}) {
		t.Errorf("expected no match: host outside the announced prefix")
	}
}

func TestTotalCountsAllFourAxes(t *testing.T) {
	s := New()
	loadString(t, s, strings.Join([]string{
		"ipv4 1.2.3.0/24 ms",
		"ipv4 1.2.3.4",
		"ipv6 ::1/128 ms",
		"as 100",
	}, "\n")+"\n", false)

	if got := s.Total(); got != 4 {
		t.Fatalf("expected Total()=4, got %d (v4=%d v6=%d as=%d host=%d)",
			got, s.CountV4(), s.CountV6(), s.CountAS(), s.CountHost())
	}
}

func TestLoadRejectsMalformedLines(t *testing.T) {
	cases := []string{
		"bogus 1.2.3.0/24 ms",
		"ipv4 1.2.3.0/24",        // missing mode
		"ipv4 1.2.3.0/99 ms",     // mask out of range
		"ipv6 1.2.3.0/24 ms",     // not an ipv6 address
		"as 999999",              // out of range
		"as notanumber",
	}
	for _, c := range cases {
		s := New()
		if _, err := LoadFrom(s, strings.NewReader(c+"\n"), false); err == nil {
			t.Errorf("expected error for line %q, got none", c)
		}
	}
}

func TestLoadIgnoresBlankAndCommentLines(t *testing.T) {
	s := New()
	loadString(t, s, "\n# a comment\n   \nas 1\n", false)
	if s.CountAS() != 1 {
		t.Fatalf("expected exactly one AS rule, got %d", s.CountAS())
	}
}

func TestMatchAxisReportsWhichCriterionFired(t *testing.T) {
	s := New()
	loadString(t, s, strings.Join([]string{
		"as 53175",
		"ipv4 205.94.224.0/20 ms",
		"ipv4 10.1.2.3",
		"ipv6 2a02:1378::/32 ls",
	}, "\n")+"\n", false)

	cases := []struct {
		name string
		rec  Record
		want Axis
	}{
		{"as", Record{TerminalAS: 53175}, AxisAS},
		{"v4", Record{V4Prefixes: []string{"205.94.224.0/20"}}, AxisV4},
		{"host", Record{V4Prefixes: []string{"10.1.0.0/16"}}, AxisHost},
		{"v6", Record{V6Prefixes: []string{"2a02:1378::/32"}}, AxisV6},
	}
	for _, c := range cases {
		axis, ok := s.MatchAxis(c.rec)
		if !ok {
			t.Errorf("%s: expected a match", c.name)
		}
		if axis != c.want {
			t.Errorf("%s: expected axis %q, got %q", c.name, c.want, axis)
		}
	}

	if axis, ok := s.MatchAxis(Record{TerminalAS: 1}); ok {
		t.Errorf("expected no match, got axis %q", axis)
	}
}

func TestLoadDedupsIdenticalRules(t *testing.T) {
	s := New()
	loadString(t, s, "ipv4 10.0.0.0/8 ms\nipv4 10.0.0.0/8 ms\n", false)
	if s.CountV4() != 1 {
		t.Fatalf("expected dedup to 1 rule, got %d", s.CountV4())
	}
}
