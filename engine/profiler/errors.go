package profiler

import "errors"

var (
	// ErrCapacityExceeded is returned when a parent already holds MaxChildren children.
	ErrCapacityExceeded = errors.New("profiler: child capacity exceeded")
	// ErrTooManyDuplicateScopes is returned when a scope name collides more than
	// maxDuplicates times under one parent within a single frame.
	ErrTooManyDuplicateScopes = errors.New("profiler: too many duplicate scopes")
	// ErrWrongThread is returned when a mutating call is made off the main thread.
	ErrWrongThread = errors.New("profiler: called from wrong thread")
	// ErrAggregationUnsupported is returned when same-frame aggregation is requested.
	ErrAggregationUnsupported = errors.New("profiler: scope aggregation is not supported")
	// ErrEmptyScopeName is returned when StartScope is given an empty name.
	ErrEmptyScopeName = errors.New("profiler: empty scope name")
	// ErrNodeCeiling is returned when the tree already holds MaxNodes live nodes.
	ErrNodeCeiling = errors.New("profiler: node ceiling reached")
)
