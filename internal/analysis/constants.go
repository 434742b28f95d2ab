// Package analysis turns the headers and metadata of a managed PE image
// into an inspection report: assembly identity, target framework, type
// tree, native exports and the native entry stub.
package analysis

const (
	// MaxSerStringLength bounds custom attribute string arguments.
	MaxSerStringLength = 1024

	// UnknownFramework is reported when no detector matches.
	UnknownFramework = "unknown"

	// unknownType stands in for a member type whose signature is malformed.
	unknownType = "?"
)
