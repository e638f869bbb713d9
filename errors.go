package wikigr

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("wikigr: invalid configuration")

	// ErrPackNotFound is returned when a pack directory has no metadata record.
	ErrPackNotFound = errors.New("wikigr: pack not found")

	// ErrDimensionMismatch is returned when the configured embedding model or
	// dimension disagrees with the pack metadata.
	ErrDimensionMismatch = errors.New("wikigr: embedding model mismatch")

	// ErrNoSeeds is returned when expansion is started without seed articles.
	ErrNoSeeds = errors.New("wikigr: no seed articles")

	// ErrArticleNotFound is returned when an article title does not exist.
	ErrArticleNotFound = errors.New("wikigr: article not found")

	// ErrExpansionAborted is returned when repeated store failures force
	// expansion to stop.
	ErrExpansionAborted = errors.New("wikigr: expansion aborted")

	// ErrLLMRequestFailed is returned when an LLM request fails.
	ErrLLMRequestFailed = errors.New("wikigr: LLM request failed")

	// ErrStoreClosed is returned when operating on a closed pack.
	ErrStoreClosed = errors.New("wikigr: pack store is closed")
)
