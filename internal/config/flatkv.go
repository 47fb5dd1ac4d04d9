package config

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// flatKVParser implements koanf.Parser for spec §6.1's configuration file
// grammar: one `key = value` pair per line, blank lines and `#`-comments
// ignored. koanf's bundled parsers only cover YAML/JSON/TOML/etc., so this
// is the idiomatic koanf way to add support for a custom flat format —
// the same Unmarshal/Marshal shape those parsers implement.
type flatKVParser struct{}

func (flatKVParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})

	sc := bufio.NewScanner(bytes.NewReader(b))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		idx := strings.IndexByte(text, '=')
		if idx < 0 {
			return nil, fmt.Errorf("config line %d: missing '='", line)
		}
		key := strings.TrimSpace(text[:idx])
		if key == "" {
			return nil, fmt.Errorf("config line %d: empty key", line)
		}
		out[key] = parseScalar(strings.TrimSpace(text[idx+1:]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return out, nil
}

// parseScalar infers bool/int/string from an unquoted value, since the
// file grammar carries no type annotations of its own.
func parseScalar(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

func (flatKVParser) Marshal(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s = %v\n", k, m[k])
	}
	return buf.Bytes(), nil
}
