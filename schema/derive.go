package schema

import (
	"log/slog"
)

// StorageType is the flattened attribute type a field is stored as.
type StorageType string

const (
	StorageString  StorageType = "string"
	StorageNumber  StorageType = "number"
	StorageBoolean StorageType = "boolean"
	StorageList    StorageType = "list"
	StorageMap     StorageType = "map"
	StorageAny     StorageType = "any"
)

// Attribute is the derived storage description of one field.
type Attribute struct {
	StorageType StorageType
	Required    bool
	Default     any   // nil when no default is declared
	HasDefault  bool  // distinguishes a nil default from no default
	Allowed     []any // membership list for enum/literal fields, nil otherwise
}

// Attributes maps field names to their derived storage attributes.
type Attributes map[string]Attribute

// Derive converts a declarative field schema into a flat attribute schema.
// It runs once per entity type at startup. Unrecognized node kinds fall
// back to string storage; that is an escape hatch, not silent data loss,
// so each occurrence is logged.
func Derive(fields Fields, logger *slog.Logger) Attributes {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make(Attributes, len(fields))
	for name, node := range fields {
		attr := Attribute{Required: true}
		deriveNode(node, name, &attr, logger)
		attrs[name] = attr
	}
	return attrs
}

func deriveNode(n Node, field string, attr *Attribute, logger *slog.Logger) {
	switch n.Kind {
	case KindOptional, KindNullable:
		attr.Required = false
		deriveNode(*n.Inner, field, attr, logger)
	case KindDefault:
		attr.HasDefault = true
		if n.Thunk != nil {
			attr.Default = n.Thunk()
		} else {
			attr.Default = n.Value
		}
		deriveNode(*n.Inner, field, attr, logger)
	case KindPipe:
		// The transform is not represented in storage.
		deriveNode(*n.Inner, field, attr, logger)
	case KindString:
		attr.StorageType = StorageString
	case KindNumber:
		attr.StorageType = StorageNumber
	case KindBoolean:
		attr.StorageType = StorageBoolean
	case KindEnum, KindLiteral:
		attr.StorageType = storageOfValues(n.Values)
		attr.Allowed = n.Values
	case KindArray:
		attr.StorageType = StorageList
	case KindObject, KindIntersection:
		attr.StorageType = StorageMap
	case KindUnion:
		// The storage layer cannot statically narrow a union.
		attr.StorageType = StorageAny
	default:
		logger.Warn("unrecognized schema node, storing as string",
			"field", field,
			"kind", int(n.Kind),
		)
		attr.StorageType = StorageString
	}
}

// storageOfValues picks the storage type of an enum or literal from its
// first allowed value. Mixed-type value lists degrade to any.
func storageOfValues(values []any) StorageType {
	if len(values) == 0 {
		return StorageString
	}
	first := storageOf(values[0])
	for _, v := range values[1:] {
		if storageOf(v) != first {
			return StorageAny
		}
	}
	return first
}

func storageOf(v any) StorageType {
	switch v.(type) {
	case string:
		return StorageString
	case bool:
		return StorageBoolean
	case int, int32, int64, float32, float64:
		return StorageNumber
	default:
		return StorageAny
	}
}
