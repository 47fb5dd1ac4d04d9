package filter

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// parsed is the intermediate result of parsing a rule file, before
// aggregation and before being installed into a Store.
type parsed struct {
	v4    []Rule
	v6    []Rule
	as    map[int]struct{}
	hosts map[string][4]byte
}

// parseRules reads a rule file per spec §6.2's grammar: one rule per
// non-blank, non-comment line, tokens `kind value mode?`. Any malformed
// line is a fatal error identifying the offending line number — rule-file
// parsing has no "skip and continue" mode.
func parseRules(r io.Reader) (*parsed, error) {
	p := &parsed{
		as:    make(map[int]struct{}),
		hosts: make(map[string][4]byte),
	}
	seenV4 := make(map[string]bool)
	seenV6 := make(map[string]bool)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		kind := strings.ToLower(fields[0])
		switch kind {
		case "ipv4":
			if err := parseIPv4Line(fields, p, seenV4); err != nil {
				return nil, fmt.Errorf("rule file line %d: %w", line, err)
			}
		case "ipv6":
			if err := parseIPv6Line(fields, p, seenV6); err != nil {
				return nil, fmt.Errorf("rule file line %d: %w", line, err)
			}
		case "as":
			if err := parseASLine(fields, p); err != nil {
				return nil, fmt.Errorf("rule file line %d: %w", line, err)
			}
		default:
			return nil, fmt.Errorf("rule file line %d: unknown kind %q", line, fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	return p, nil
}

func parseIPv4Line(fields []string, p *parsed, seen map[string]bool) error {
	if len(fields) < 2 {
		return fmt.Errorf("ipv4 rule missing value")
	}
	value := fields[1]

	if !strings.Contains(value, "/") {
		if len(fields) != 2 {
			return fmt.Errorf("ipv4 host %q takes no mode", value)
		}
		ip := net.ParseIP(value)
		if ip == nil {
			return fmt.Errorf("invalid ipv4 host %q", value)
		}
		v4 := ip.To4()
		if v4 == nil {
			return fmt.Errorf("%q is not an ipv4 address", value)
		}
		var key [4]byte
		copy(key[:], v4)
		p.hosts[string(key[:])] = key
		return nil
	}

	if len(fields) != 3 {
		return fmt.Errorf("ipv4 prefix %q requires a mode (ms or ls)", value)
	}
	addr, mask, err := splitPrefixFile(value)
	if err != nil {
		return err
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return fmt.Errorf("invalid ipv4 address %q", addr)
	}
	v4 := ip.To4()
	if v4 == nil {
		return fmt.Errorf("%q is not an ipv4 address", addr)
	}
	if mask < 0 || mask > 32 {
		return fmt.Errorf("ipv4 mask %d out of range [0,32]", mask)
	}
	mode, err := parseMode(fields[2])
	if err != nil {
		return err
	}
	r := newRule(v4, mask, mode)
	if !seen[r.key()] {
		seen[r.key()] = true
		p.v4 = append(p.v4, r)
	}
	return nil
}

func parseIPv6Line(fields []string, p *parsed, seen map[string]bool) error {
	if len(fields) != 3 {
		return fmt.Errorf("ipv6 rule requires value and mode")
	}
	addr, mask, err := splitPrefixFile(fields[1])
	if err != nil {
		return err
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return fmt.Errorf("invalid ipv6 address %q", addr)
	}
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return fmt.Errorf("%q is not an ipv6 address", addr)
	}
	if mask < 0 || mask > 128 {
		return fmt.Errorf("ipv6 mask %d out of range [0,128]", mask)
	}
	mode, err := parseMode(fields[2])
	if err != nil {
		return err
	}
	r := newRule(v6, mask, mode)
	if !seen[r.key()] {
		seen[r.key()] = true
		p.v6 = append(p.v6, r)
	}
	return nil
}

func parseASLine(fields []string, p *parsed) error {
	if len(fields) != 2 {
		return fmt.Errorf("as rule requires exactly one value")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("invalid as number %q", fields[1])
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("as number %d out of range [1,65535]", n)
	}
	p.as[n] = struct{}{}
	return nil
}

// splitPrefixFile splits "addr/mask" returning mask as an int, or an error
// naming the malformed token. Unlike match.go's splitPrefix (which is used
// on the hot path and signals failure with a bool), this one is only used
// while loading a rule file, so it can afford to build a descriptive error.
func splitPrefixFile(s string) (addr string, mask int, err error) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return "", 0, fmt.Errorf("%q is missing a /mask", s)
	}
	m, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("%q has a non-numeric mask", s)
	}
	return s[:idx], m, nil
}
