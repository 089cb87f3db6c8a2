// Package id generates prefixed, URL-safe identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for identifiers minted by the server.
const (
	PrefixApprovalSession = "aps"
	PrefixLibrary         = "lib"
	PrefixFile            = "file"
	PrefixSeries          = "ser"
)

// Generate creates a prefixed NanoID, e.g. "aps-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics when the system has no entropy.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
