// Package search maintains an in-memory fuzzy-searchable index over
// denormalized per-person documents. The index is best effort and
// rebuildable: it is fed from full snapshots of the table (via the
// pager) or maintained incrementally one document at a time.
package search

import (
	"log/slog"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/jacentio/rolodex/store"
)

// Document is the flattened per-person record fed into the index.
// Fields merge the person's own names with its primary/current children.
type Document struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	City      string
	Country   string
	Company   string
	Position  string
	BankName  string
}

func (d *Document) terms() []string {
	fields := []string{
		d.FirstName, d.LastName, d.Email, d.Phone,
		d.City, d.Country, d.Company, d.Position, d.BankName,
	}
	var terms []string
	for _, f := range fields {
		terms = append(terms, tokenize(f)...)
	}
	return terms
}

// Batch is one mixed batch of the five entity types, as produced by a
// pager page or drain.
type Batch struct {
	Persons      []store.Person
	Addresses    []store.Address
	BankAccounts []store.BankAccount
	ContactInfos []store.ContactInfo
	Employments  []store.Employment
}

// BuildDocuments merges a batch into one document per person. Children
// whose flag is unset are ignored; when several children of one type
// carry the flag, the last one wins, mirroring the store's
// non-enforcement of exclusivity. Children referencing a person absent
// from the batch are logged and skipped rather than aborting the merge.
func BuildDocuments(batch Batch, logger *slog.Logger) []Document {
	if logger == nil {
		logger = slog.Default()
	}

	byPerson := make(map[string]*Document, len(batch.Persons))
	for _, p := range batch.Persons {
		if p.ID == "" {
			logger.Warn("skipping person without id during index merge")
			continue
		}
		byPerson[p.ID] = &Document{
			ID:        p.ID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		}
	}

	lookup := func(personID string, kind string) *Document {
		doc, ok := byPerson[personID]
		if !ok {
			logger.Warn("skipping orphaned record during index merge",
				"type", kind,
				"personId", personID,
			)
			return nil
		}
		return doc
	}

	for _, a := range batch.Addresses {
		if !a.IsPrimary {
			continue
		}
		if doc := lookup(a.PersonID, "address"); doc != nil {
			doc.City = a.City
			doc.Country = a.Country
		}
	}
	for _, b := range batch.BankAccounts {
		if !b.IsPrimary {
			continue
		}
		if doc := lookup(b.PersonID, "bankAccount"); doc != nil {
			doc.BankName = b.BankName
		}
	}
	for _, c := range batch.ContactInfos {
		if !c.IsPrimary {
			continue
		}
		doc := lookup(c.PersonID, "contactInfo")
		if doc == nil {
			continue
		}
		switch c.Type {
		case store.ContactEmail:
			doc.Email = c.Value
		case store.ContactPhone, store.ContactMobile:
			doc.Phone = c.Value
		}
	}
	for _, e := range batch.Employments {
		if !e.IsCurrent {
			continue
		}
		if doc := lookup(e.PersonID, "employment"); doc != nil {
			doc.Company = e.Company
			doc.Position = e.Position
		}
	}

	docs := make([]Document, 0, len(byPerson))
	for _, doc := range byPerson {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// Fingerprint hashes the sorted person id list with the matching
// updatedAt stamps. Consumers compare fingerprints across polls and
// rebuild the index only when the value changes.
func Fingerprint(persons []store.Person) uint64 {
	ids := make([]string, 0, len(persons))
	stamps := make(map[string]string, len(persons))
	for _, p := range persons {
		ids = append(ids, p.ID)
		stamps[p.ID] = p.UpdatedAt
	}
	sort.Strings(ids)

	h := xxhash.New()
	for _, id := range ids {
		_, _ = h.WriteString(id)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(stamps[id])
		_, _ = h.WriteString("\x00")
	}
	return h.Sum64()
}
