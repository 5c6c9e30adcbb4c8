package id

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind prefixes used by the narrator.
const (
	KindGeneration = "gen"
	KindResolution = "res"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character lowercase base32 identifier.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// New returns NewID led by kind and an underscore. An empty kind yields a
// bare id.
func New(kind string) (string, error) {
	raw, err := NewID()
	if err != nil {
		return "", err
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return raw, nil
	}
	return kind + "_" + raw, nil
}

// NewResolution returns a resolution id for a pending approval.
func NewResolution() (string, error) {
	return New(KindResolution)
}

// ValidateResolution rejects resolution ids that are empty or cannot travel
// as one URL path segment.
func ValidateResolution(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("resolution id is required")
	}
	if strings.ContainsAny(v, " /\t\n") {
		return fmt.Errorf("malformed resolution id %q", v)
	}
	return nil
}
