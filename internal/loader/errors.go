package loader

import "fmt"

// MalformedObjectError is recorded when an object lacks data its type
// requires, usually the mitre-attack external id. The object is skipped.
type MalformedObjectError struct {
	StixID string
	Type   string
	Reason string
}

func (e *MalformedObjectError) Error() string {
	return fmt.Sprintf("malformed %s object %s: %s", e.Type, e.StixID, e.Reason)
}

// UnresolvedReferenceError is recorded when a relationship points at a STIX
// id that is not part of the model. The relationship is dropped.
type UnresolvedReferenceError struct {
	RelationshipID string
	Ref            string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("relationship %s references unknown object %s", e.RelationshipID, e.Ref)
}
