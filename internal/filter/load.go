package filter

import (
	"fmt"
	"io"
	"os"
)

// Load reads the rule file at path, optionally aggregates adjacent
// same-mode prefix rules, and installs the result into s. It is meant to
// be called once at startup (spec §4.7) — a rule-file error here is fatal
// to the process, not a per-line skip.
func (s *Store) Load(path string, aggregateRules bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening rule file %s: %w", path, err)
	}
	defer f.Close()

	n, err := LoadFrom(s, f, aggregateRules)
	_ = n
	if err != nil {
		return fmt.Errorf("rule file %s: %w", path, err)
	}
	return nil
}

// LoadFrom parses rules from r and installs them into s, returning the
// total rule count (v4 + v6 + as + host) after aggregation. Exposed
// separately from Load so tests can load from an in-memory reader instead
// of a file on disk.
func LoadFrom(s *Store, r io.Reader, aggregateRules bool) (int, error) {
	p, err := parseRules(r)
	if err != nil {
		return 0, err
	}

	v4, v6 := p.v4, p.v6
	if aggregateRules {
		v4 = aggregate(v4)
		v6 = aggregate(v6)
	}

	s.replace(v4, v6, p.as, p.hosts)
	return s.Total(), nil
}
