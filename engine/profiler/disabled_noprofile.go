//go:build noprofile

package profiler

// Built with -tags noprofile: scopes are no-ops until SetDisabled(false).
const defaultDisabled = true
