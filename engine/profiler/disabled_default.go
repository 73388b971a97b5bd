//go:build !noprofile

package profiler

const defaultDisabled = false
