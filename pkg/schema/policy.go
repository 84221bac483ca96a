package schema

import (
	"fmt"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ConflictPolicy instructs the server how to handle a destination name which
// already exists. The zero value means "no policy": the upload is rejected
// with a conflict.
type ConflictPolicy string

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	ConflictNone      ConflictPolicy = ""
	ConflictRename    ConflictPolicy = "rename"
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictSkip      ConflictPolicy = "skip"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ParseConflictPolicy returns the policy for a string, which is case-insensitive.
// An empty string or "none" returns ConflictNone.
func ParseConflictPolicy(v string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case "none":
		return ConflictNone, nil
	case ConflictNone, ConflictRename, ConflictOverwrite, ConflictSkip:
		return p, nil
	default:
		return ConflictNone, fmt.Errorf("invalid conflict policy %q (expected rename, overwrite or skip)", v)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so that policies are
// validated when decoded from JSON or command-line flags.
func (p *ConflictPolicy) UnmarshalText(text []byte) error {
	v, err := ParseConflictPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p ConflictPolicy) String() string {
	if p == ConflictNone {
		return "none"
	}
	return string(p)
}
