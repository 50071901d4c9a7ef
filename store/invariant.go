package store

import (
	"context"

	"github.com/jacentio/rolodex/keys"
)

// ExclusivityViolation reports that more than one child of a type is
// flagged primary (or current, for employments) for the same person.
type ExclusivityViolation struct {
	PersonID string
	Type     keys.EntityType
	IDs      []string // every child carrying the flag
}

// CheckPrimaryExclusivity reports the child collections of personID that
// carry more than one primary/current flag. The store deliberately never
// enforces exclusivity on write; existing data may violate it, and the
// UI convention is read-modify-write demotion. This probe lets callers
// detect violations without changing write behavior.
func (s *Store) CheckPrimaryExclusivity(ctx context.Context, personID string) ([]ExclusivityViolation, error) {
	rec, err := s.GetPersonWithChildren(ctx, personID)
	if err != nil {
		return nil, err
	}

	var violations []ExclusivityViolation

	var addressIDs []string
	for _, a := range rec.Addresses {
		if a.IsPrimary {
			addressIDs = append(addressIDs, a.ID)
		}
	}
	if len(addressIDs) > 1 {
		violations = append(violations, ExclusivityViolation{personID, keys.TypeAddress, addressIDs})
	}

	var bankIDs []string
	for _, b := range rec.BankAccounts {
		if b.IsPrimary {
			bankIDs = append(bankIDs, b.ID)
		}
	}
	if len(bankIDs) > 1 {
		violations = append(violations, ExclusivityViolation{personID, keys.TypeBankAccount, bankIDs})
	}

	// Contact exclusivity is per channel type: one primary email and one
	// primary phone/mobile can coexist.
	byChannel := map[string][]string{}
	for _, c := range rec.ContactInfos {
		if c.IsPrimary {
			byChannel[c.Type] = append(byChannel[c.Type], c.ID)
		}
	}
	for _, ids := range byChannel {
		if len(ids) > 1 {
			violations = append(violations, ExclusivityViolation{personID, keys.TypeContactInfo, ids})
		}
	}

	var currentIDs []string
	for _, e := range rec.Employments {
		if e.IsCurrent {
			currentIDs = append(currentIDs, e.ID)
		}
	}
	if len(currentIDs) > 1 {
		violations = append(violations, ExclusivityViolation{personID, keys.TypeEmployment, currentIDs})
	}

	return violations, nil
}
