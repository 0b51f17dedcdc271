// Package policy evaluates Rego policies against the merged element set
// and feeds the violations into validation. Policies come from two
// sources: a small built-in set and .rego files loaded from disk.
package policy

import (
	"fmt"

	"github.com/loom-cfg/loom/pkg/element"
)

// Severity is the weight of a policy violation. Violations at error
// level and above fail validation; lower levels are reported only.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Blocking reports whether a violation at this severity fails
// validation.
func (s Severity) Blocking() bool { return s == SeverityError }

// Policy is one Rego rule set evaluated per element.
type Policy struct {
	// Name uniquely identifies the policy.
	Name string

	// Description is a human-readable summary.
	Description string

	// Rego is the policy source. It must declare a package and a
	// `deny` set whose members are either strings or objects with a
	// "message" key and optional "severity".
	Rego string

	// Severity is the default severity for violations the policy's
	// deny members do not override.
	Severity Severity

	// Enabled controls whether the policy participates in evaluation.
	Enabled bool
}

// Violation is one policy finding against one element.
type Violation struct {
	// Policy names the violated policy.
	Policy string

	// Element is the offending element.
	Element element.ID

	// Message describes the violation.
	Message string

	// Severity is the violation weight.
	Severity Severity
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Element, v.Message)
}
