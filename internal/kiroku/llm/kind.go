package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects the model backend. It is resolved once at startup by New.
type Kind int

const (
	// KindLocal is a model served by a local ollama daemon.
	KindLocal Kind = iota + 1
	// KindHosted is a model behind an OpenAI-compatible HTTP API.
	KindHosted
)

// ErrUnknownKind is returned for unrecognised backend names.
var ErrUnknownKind = errors.New("llm: unknown provider kind")

// KindFromFlag maps the USE_OLLAMA toggle to a Kind.
func KindFromFlag(useOllama bool) Kind {
	if useOllama {
		return KindLocal
	}
	return KindHosted
}

// ParseKind accepts "local"/"ollama" and "hosted"/"huggingface"/"openai".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama":
		return KindLocal, nil
	case "hosted", "huggingface", "openai":
		return KindHosted, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindHosted:
		return "hosted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindLocal && k != KindHosted {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
