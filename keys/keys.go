// Package keys builds and parses the composite keys used by the rolodex
// table and its two secondary indexes. All functions are pure; encoding
// and decoding are exact inverses for any id that does not contain the
// key separator.
package keys

import (
	"errors"
	"fmt"
	"strings"
)

// Sep is the key segment separator. Changing it is a breaking schema migration.
const Sep = "#"

const (
	personPrefix = "PERSON"
	profileSK    = "PROFILE"

	// GlobalPartition is the single partition key value shared by every
	// item on the global item index (index B).
	GlobalPartition = "ENTITIES"
)

// EntityType discriminates the five stored entity kinds.
type EntityType string

const (
	TypePerson      EntityType = "PERSON"
	TypeAddress     EntityType = "ADDRESS"
	TypeBankAccount EntityType = "BANK"
	TypeContactInfo EntityType = "CONTACT"
	TypeEmployment  EntityType = "EMPLOYMENT"
)

// ChildTypes lists the four child entity types in a stable order.
var ChildTypes = []EntityType{TypeAddress, TypeBankAccount, TypeContactInfo, TypeEmployment}

// listPartitions maps each entity type to its constant partition on the
// entity-list index (index A).
var listPartitions = map[EntityType]string{
	TypePerson:      "PERSONS",
	TypeAddress:     "ADDRESSES",
	TypeBankAccount: "BANKS",
	TypeContactInfo: "CONTACTS",
	TypeEmployment:  "EMPLOYMENTS",
}

// ErrMalformedKey is returned when a stored or supplied key does not parse
// under the expected format. It indicates data corruption or a schema
// version mismatch and is not retryable.
var ErrMalformedKey = errors.New("rolodex: malformed key")

// ErrInvalidID is returned when an identifier contains the key separator.
var ErrInvalidID = errors.New("rolodex: id contains key separator")

// ValidateID rejects identifiers that would corrupt a composite key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidID)
	}
	if strings.Contains(id, Sep) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// PersonPK returns the partition key shared by a person and all of its
// children: "PERSON#{id}".
func PersonPK(personID string) string {
	return personPrefix + Sep + personID
}

// PersonSK returns the constant sort key of a person profile item.
func PersonSK() string {
	return profileSK
}

// ChildSK returns the sort key of a child item: "{TYPE}#{childId}".
func ChildSK(t EntityType, childID string) string {
	return string(t) + Sep + childID
}

// ChildSKPrefix returns the sort key prefix that selects all children of
// one type within a person partition.
func ChildSKPrefix(t EntityType) string {
	return string(t) + Sep
}

// ListPartition returns the constant index-A partition for an entity type.
func ListPartition(t EntityType) string {
	return listPartitions[t]
}

// PersonListSK returns the index-A sort key for a person. Sorting by
// lastName, then firstName, then id yields a stable directory ordering.
func PersonListSK(lastName, firstName, id string) string {
	return lastName + Sep + firstName + Sep + id
}

// GlobalSK returns the index-B sort key. All items belonging to one person
// are contiguous under this ordering:
//
//	PERSON#{pid}#PROFILE          (person profile)
//	PERSON#{pid}#{TYPE}#{cid}     (children)
func GlobalSK(t EntityType, personID, childID string) string {
	if t == TypePerson {
		return PersonPK(personID) + Sep + profileSK
	}
	return PersonPK(personID) + Sep + ChildSK(t, childID)
}

// ParsedKey is the decoded form of a primary key pair.
type ParsedKey struct {
	Type     EntityType
	PersonID string
	ChildID  string // empty for persons
}

// ParsePK extracts the person id from a partition key.
func ParsePK(pk string) (personID string, err error) {
	prefix, rest, found := strings.Cut(pk, Sep)
	if !found || prefix != personPrefix || rest == "" || strings.Contains(rest, Sep) {
		return "", fmt.Errorf("%w: partition key %q", ErrMalformedKey, pk)
	}
	return rest, nil
}

// ParseKey decodes a (partition key, sort key) pair into its entity type
// and identifiers. Keys that do not match any known shape fail with
// ErrMalformedKey rather than decoding to a wrong type.
func ParseKey(pk, sk string) (ParsedKey, error) {
	personID, err := ParsePK(pk)
	if err != nil {
		return ParsedKey{}, err
	}

	if sk == profileSK {
		return ParsedKey{Type: TypePerson, PersonID: personID}, nil
	}

	prefix, childID, found := strings.Cut(sk, Sep)
	if !found || childID == "" || strings.Contains(childID, Sep) {
		return ParsedKey{}, fmt.Errorf("%w: sort key %q", ErrMalformedKey, sk)
	}
	t := EntityType(prefix)
	switch t {
	case TypeAddress, TypeBankAccount, TypeContactInfo, TypeEmployment:
		return ParsedKey{Type: t, PersonID: personID, ChildID: childID}, nil
	default:
		return ParsedKey{}, fmt.Errorf("%w: unknown sort key prefix %q", ErrMalformedKey, prefix)
	}
}

// ParseGlobalSK decodes an index-B sort key.
func ParseGlobalSK(gsk string) (ParsedKey, error) {
	parts := strings.Split(gsk, Sep)
	switch {
	case len(parts) == 3 && parts[0] == personPrefix && parts[2] == profileSK && parts[1] != "":
		return ParsedKey{Type: TypePerson, PersonID: parts[1]}, nil
	case len(parts) == 4 && parts[0] == personPrefix && parts[1] != "" && parts[3] != "":
		t := EntityType(parts[2])
		switch t {
		case TypeAddress, TypeBankAccount, TypeContactInfo, TypeEmployment:
			return ParsedKey{Type: t, PersonID: parts[1], ChildID: parts[3]}, nil
		}
	}
	return ParsedKey{}, fmt.Errorf("%w: global sort key %q", ErrMalformedKey, gsk)
}
