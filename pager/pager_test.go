package pager_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jacentio/rolodex/ddbmock"
	"github.com/jacentio/rolodex/pager"
	"github.com/jacentio/rolodex/store"
)

// seedTable populates the memory table with count persons, each owning
// one address and two contact channels. Returns the person ids.
func seedTable(t *testing.T, s *store.Store, count int) map[string]bool {
	t.Helper()
	ctx := context.Background()
	ids := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		p := store.Person{FirstName: fmt.Sprintf("First%02d", i), LastName: fmt.Sprintf("Last%02d", i)}
		if err := s.CreatePerson(ctx, &p); err != nil {
			t.Fatalf("create person %d: %v", i, err)
		}
		ids[p.ID] = true

		a := store.Address{PersonID: p.ID, Street: "x", City: "Here", PostalCode: "00000", Country: "UK"}
		if err := s.CreateAddress(ctx, &a); err != nil {
			t.Fatalf("create address %d: %v", i, err)
		}
		for _, typ := range []string{store.ContactEmail, store.ContactPhone} {
			c := store.ContactInfo{PersonID: p.ID, Type: typ, Value: "v"}
			if err := s.CreateContactInfo(ctx, &c); err != nil {
				t.Fatalf("create contact %d: %v", i, err)
			}
		}
	}
	return ids
}

func newSeededPager(t *testing.T, persons, limit int) (*pager.Pager, map[string]bool) {
	t.Helper()
	client := ddbmock.NewMemoryClient()
	cfg := store.DefaultConfig("rolodex-test")
	s, err := store.New(client, cfg)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ids := seedTable(t, s, persons)

	p, err := pager.New(client, cfg, pager.WithPageLimit(limit))
	if err != nil {
		t.Fatalf("create pager: %v", err)
	}
	return p, ids
}

func TestNewRequiresTableName(t *testing.T) {
	_, err := pager.New(ddbmock.NewMemoryClient(), store.Config{})
	if err == nil {
		t.Fatal("expected error for missing table name")
	}
}

func TestNextPageEmptyTable(t *testing.T) {
	p, err := pager.New(ddbmock.NewMemoryClient(), store.DefaultConfig("rolodex-test"))
	if err != nil {
		t.Fatalf("create pager: %v", err)
	}

	page, err := p.NextPage(context.Background(), nil)
	if err != nil {
		t.Fatalf("next page: %v", err)
	}
	if page.Count() != 0 {
		t.Errorf("expected empty page, got %d entities", page.Count())
	}
	if !page.Exhausted {
		t.Error("expected exhausted page on empty table")
	}
}

func TestWalkTerminatesAndCoversEverything(t *testing.T) {
	const persons = 7
	// Page limit far below the total item count forces multiple rounds.
	p, wantIDs := newSeededPager(t, persons, 3)
	ctx := context.Background()

	seenPersons := map[string]int{}
	seenAddresses := map[string]int{}
	seenContacts := map[string]int{}

	var cursor *pager.Cursor
	pages := 0
	for {
		page, err := p.NextPage(ctx, cursor)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		pages++
		if pages > 100 {
			t.Fatal("walk did not terminate")
		}
		for _, v := range page.Persons {
			seenPersons[v.ID]++
		}
		for _, v := range page.Addresses {
			seenAddresses[v.ID]++
		}
		for _, v := range page.ContactInfos {
			seenContacts[v.ID]++
		}
		if page.Exhausted {
			break
		}
		cursor = page.Cursor
	}

	if pages < 2 {
		t.Errorf("expected multiple pages with limit 3, got %d", pages)
	}
	if len(seenPersons) != persons {
		t.Errorf("expected %d persons, got %d", persons, len(seenPersons))
	}
	for id := range wantIDs {
		if seenPersons[id] != 1 {
			t.Errorf("person %s seen %d times", id, seenPersons[id])
		}
	}
	if len(seenAddresses) != persons {
		t.Errorf("expected %d addresses, got %d", persons, len(seenAddresses))
	}
	if len(seenContacts) != 2*persons {
		t.Errorf("expected %d contacts, got %d", 2*persons, len(seenContacts))
	}
	for id, n := range seenAddresses {
		if n != 1 {
			t.Errorf("address %s seen %d times", id, n)
		}
	}
	for id, n := range seenContacts {
		if n != 1 {
			t.Errorf("contact %s seen %d times", id, n)
		}
	}
}

func TestDrainAllMatchesSeededDataset(t *testing.T) {
	const persons = 5
	p, wantIDs := newSeededPager(t, persons, 4)

	all, err := p.DrainAll(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !all.Exhausted {
		t.Error("drained page not marked exhausted")
	}
	if len(all.Persons) != persons {
		t.Errorf("expected %d persons, got %d", persons, len(all.Persons))
	}
	if len(all.Addresses) != persons || len(all.ContactInfos) != 2*persons {
		t.Errorf("unexpected child counts: %d addresses, %d contacts",
			len(all.Addresses), len(all.ContactInfos))
	}
	if len(all.BankAccounts) != 0 || len(all.Employments) != 0 {
		t.Errorf("unexpected entities: %d banks, %d employments",
			len(all.BankAccounts), len(all.Employments))
	}
	for _, v := range all.Persons {
		if !wantIDs[v.ID] {
			t.Errorf("unknown person %s in drain", v.ID)
		}
	}
}

func TestStreamsAdvanceIndependently(t *testing.T) {
	// One person but many addresses: the person stream exhausts on the
	// first page while the address stream keeps going.
	client := ddbmock.NewMemoryClient()
	cfg := store.DefaultConfig("rolodex-test")
	s, err := store.New(client, cfg)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	person := store.Person{FirstName: "Edsger", LastName: "Dijkstra"}
	if err := s.CreatePerson(ctx, &person); err != nil {
		t.Fatalf("create person: %v", err)
	}
	const addresses = 9
	for i := 0; i < addresses; i++ {
		a := store.Address{PersonID: person.ID, Street: "x", City: "Rotterdam", PostalCode: "3011", Country: "NL"}
		if err := s.CreateAddress(ctx, &a); err != nil {
			t.Fatalf("create address: %v", err)
		}
	}

	p, err := pager.New(client, cfg, pager.WithPageLimit(4))
	if err != nil {
		t.Fatalf("create pager: %v", err)
	}

	total := 0
	var cursor *pager.Cursor
	for {
		page, err := p.NextPage(ctx, cursor)
		if err != nil {
			t.Fatalf("next page: %v", err)
		}
		total += len(page.Addresses)
		if page.Exhausted {
			break
		}
		if page.Cursor.Person != nil && page.Cursor.Address == nil {
			t.Error("address stream exhausted before the larger one")
		}
		cursor = page.Cursor
	}
	if total != addresses {
		t.Errorf("expected %d addresses across pages, got %d", addresses, total)
	}
}
