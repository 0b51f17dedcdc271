package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		elementNamingPolicy(),
		danglingInstancePolicy(),
		largeTypePolicy(),
	}
}

// elementNamingPolicy enforces lowercase alphanumeric element names.
func elementNamingPolicy() Policy {
	return Policy{
		Name:        "element-naming",
		Description: "Element names should be lowercase alphanumeric with underscores",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package loom.policies.naming

import rego.v1

deny contains violation if {
	not regex.match("^[a-z0-9_]+$", input.name)
	violation := {
		"message": sprintf("element name %q is not lowercase alphanumeric", [input.name]),
		"severity": "warning",
	}
}
`,
	}
}

// danglingInstancePolicy flags instances that declare no type at all.
// Unresolvable type references are a validation concern; a missing
// declaration is caught here.
func danglingInstancePolicy() Policy {
	return Policy{
		Name:        "instance-typed",
		Description: "Instances must declare a type",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package loom.policies.typed

import rego.v1

deny contains violation if {
	input.kind == "instance"
	not input.type
	violation := {
		"message": sprintf("instance %s declares no type", [input.id]),
		"severity": "error",
	}
}
`,
	}
}

// largeTypePolicy warns about types with an unusually large field count.
func largeTypePolicy() Policy {
	return Policy{
		Name:        "type-field-count",
		Description: "Warns when a type declares more than 100 fields",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package loom.policies.size

import rego.v1

deny contains violation if {
	input.kind == "object_type"
	count(input.fields) > 100
	violation := {
		"message": sprintf("type %s declares %d fields", [input.id, count(input.fields)]),
		"severity": "warning",
	}
}
`,
	}
}
