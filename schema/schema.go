// Package schema describes entity fields declaratively and derives the
// flat storage attribute schema used by the store to validate items
// before write. The declarative side is a closed set of type nodes
// combined with wrapper constructors; derivation is a total recursive
// walk over that set, so the validation schema and the storage schema
// cannot drift apart.
package schema

// Kind enumerates the closed set of type node kinds.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindEnum
	KindLiteral
	KindOptional
	KindNullable
	KindDefault
	KindArray
	KindObject
	KindUnion
	KindIntersection
	KindPipe
)

// Node is one node in a declarative field type tree. Nodes are built with
// the constructor functions below and never mutated afterwards.
type Node struct {
	Kind    Kind
	Inner   *Node   // wrapped type for Optional/Nullable/Default/Array/Pipe
	Members []Node  // member types for Union/Intersection
	Values  []any   // allowed values for Enum, the single value for Literal
	Value   any     // default value for Default
	Thunk   func() any // default generator for Default; takes precedence over Value
}

// String declares a string field.
func String() Node { return Node{Kind: KindString} }

// Number declares a numeric field. Integers and floats share one storage type.
func Number() Node { return Node{Kind: KindNumber} }

// Boolean declares a boolean field.
func Boolean() Node { return Node{Kind: KindBoolean} }

// Enum declares a string field restricted to the given values.
func Enum(values ...string) Node {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Node{Kind: KindEnum, Values: vs}
}

// Literal declares a field that must hold exactly the given value.
func Literal(value any) Node {
	return Node{Kind: KindLiteral, Values: []any{value}}
}

// Optional marks a field as not required.
func Optional(inner Node) Node { return Node{Kind: KindOptional, Inner: &inner} }

// Nullable marks a field as accepting null. Stored attributes treat
// nullable the same as optional: the attribute may be absent.
func Nullable(inner Node) Node { return Node{Kind: KindNullable, Inner: &inner} }

// Default attaches a default value to a field. The field stays required;
// the store fills in the default when the value is missing.
func Default(inner Node, value any) Node {
	return Node{Kind: KindDefault, Inner: &inner, Value: value}
}

// DefaultFunc attaches a generated default, resolved once at derivation.
func DefaultFunc(inner Node, gen func() any) Node {
	return Node{Kind: KindDefault, Inner: &inner, Thunk: gen}
}

// Array declares a list field.
func Array(inner Node) Node { return Node{Kind: KindArray, Inner: &inner} }

// Object declares a nested map field. Nested field types are not tracked
// at the storage layer.
func Object() Node { return Node{Kind: KindObject} }

// Union declares a field that may hold one of several types.
func Union(members ...Node) Node { return Node{Kind: KindUnion, Members: members} }

// Intersection declares a field combining several object types.
func Intersection(members ...Node) Node { return Node{Kind: KindIntersection, Members: members} }

// Pipe declares a field whose value passes through a transform after
// validation. Only the source type matters for storage.
func Pipe(source Node) Node { return Node{Kind: KindPipe, Inner: &source} }

// Fields is a declarative schema for one entity type.
type Fields map[string]Node
