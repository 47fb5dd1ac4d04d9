package kafka

import (
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// saslMechanism maps a configured mechanism name to the matching franz-go
// sasl.Mechanism; the name is matched case-insensitively. Unknown mechanisms are a configuration error, caught at
// startup when the sink is constructed.
func saslMechanism(name, user, pass string) (sasl.Mechanism, error) {
	auth := plain.Auth{User: user, Pass: pass}
	switch strings.ToLower(name) {
	case "plain":
		return auth.AsMechanism(), nil
	case "scram-sha-256":
		return scram.Auth{User: user, Pass: pass}.AsSha256Mechanism(), nil
	case "scram-sha-512":
		return scram.Auth{User: user, Pass: pass}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unknown kafka sasl mechanism %q", name)
	}
}
