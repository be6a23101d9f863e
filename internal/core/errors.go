package core

import "errors"

var (
	// ErrInvalidInput is returned for inputs the engine cannot interpret
	ErrInvalidInput = errors.New("invalid analysis input")
	// ErrModelUnavailable is returned when the classifier artifact cannot be loaded
	ErrModelUnavailable = errors.New("classifier model unavailable")
	// ErrCorruptArtifact is returned when the classifier artifact fails validation
	ErrCorruptArtifact = errors.New("classifier artifact is corrupt")
	// ErrClassification is returned when the classifier fails on a single input
	ErrClassification = errors.New("classification failed")
	// ErrInternal wraps unexpected faults recovered inside the pipeline
	ErrInternal = errors.New("internal scoring fault")
	// ErrCacheMiss is returned by cache repositories when no entry exists
	ErrCacheMiss = errors.New("cache entry not found")
)
