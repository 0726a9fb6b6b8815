package domain

import dErrors "trellis/pkg/domain-errors"

// ResourceType is the closed set of resources that can be shared externally
// or put through an approval cycle. Type-specific behavior hangs off this tag
// via registered handlers, never inline branching in core logic.
type ResourceType string

const (
	ResourceProject   ResourceType = "project"
	ResourceMilestone ResourceType = "milestone"
	ResourceBoard     ResourceType = "board"
	ResourceNote      ResourceType = "note"
)

// Valid reports whether rt is one of the known resource types.
func (rt ResourceType) Valid() bool {
	switch rt {
	case ResourceProject, ResourceMilestone, ResourceBoard, ResourceNote:
		return true
	}
	return false
}

func (rt ResourceType) String() string { return string(rt) }

// ParseResourceType validates a resource type from its wire form.
func ParseResourceType(raw string) (ResourceType, error) {
	rt := ResourceType(raw)
	if !rt.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown resource type: "+raw)
	}
	return rt, nil
}
