package filter

import "testing"

func TestAggregateMergesSiblingHalves(t *testing.T) {
	rules := []Rule{
		mustRule(t, "192.168.0.0", 25, MoreSpecific),
		mustRule(t, "192.168.0.128", 25, MoreSpecific),
	}

	merged := aggregate(rules)
	if len(merged) != 1 {
		t.Fatalf("expected 1 merged rule, got %d: %v", len(merged), merged)
	}
	if merged[0].Mask != 24 || merged[0].Mode != MoreSpecific {
		t.Fatalf("expected 192.168.0.0/24 ms, got %s", merged[0])
	}
	if merged[0].Network.String() != "192.168.0.0" {
		t.Fatalf("expected network 192.168.0.0, got %s", merged[0].Network)
	}
}

func TestAggregateDoesNotMergeDifferentModes(t *testing.T) {
	rules := []Rule{
		mustRule(t, "192.168.0.0", 25, MoreSpecific),
		mustRule(t, "192.168.0.128", 25, LessSpecific),
	}
	merged := aggregate(rules)
	if len(merged) != 2 {
		t.Fatalf("expected no merge across modes, got %d rules", len(merged))
	}
}

func TestAggregateIsMatchPreserving(t *testing.T) {
	rules := []Rule{
		mustRule(t, "192.168.0.0", 25, MoreSpecific),
		mustRule(t, "192.168.0.128", 25, MoreSpecific),
	}
	merged := aggregate(rules)

	probe := mustRule(t, "192.168.0.64", 26, MoreSpecific).Network
	matchedBefore := false
	for _, r := range rules {
		if r.matchPrefix(probe, 26) {
			matchedBefore = true
		}
	}
	matchedAfter := false
	for _, r := range merged {
		if r.matchPrefix(probe, 26) {
			matchedAfter = true
		}
	}
	if matchedBefore != matchedAfter {
		t.Fatalf("aggregation not match-preserving: before=%v after=%v", matchedBefore, matchedAfter)
	}
	if !matchedAfter {
		t.Fatalf("expected 192.168.0.64/26 to match the merged /24 rule")
	}
}

func TestAggregateChainsAcrossLevels(t *testing.T) {
	// Four /26 siblings should collapse all the way to a single /24.
	rules := []Rule{
		mustRule(t, "10.0.0.0", 26, LessSpecific),
		mustRule(t, "10.0.0.64", 26, LessSpecific),
		mustRule(t, "10.0.0.128", 26, LessSpecific),
		mustRule(t, "10.0.0.192", 26, LessSpecific),
	}
	merged := aggregate(rules)
	if len(merged) != 1 {
		t.Fatalf("expected full chain collapse to 1 rule, got %d: %v", len(merged), merged)
	}
	if merged[0].Mask != 24 {
		t.Fatalf("expected /24, got /%d", merged[0].Mask)
	}
}
