package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rolodex/ddbmock"
	"github.com/jacentio/rolodex/keys"
	"github.com/jacentio/rolodex/store"
)

func newTestStore(t *testing.T, opts ...store.Option) (*store.Store, *ddbmock.MemoryClient) {
	t.Helper()
	client := ddbmock.NewMemoryClient()
	s, err := store.New(client, store.DefaultConfig("rolodex-test"), opts...)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s, client
}

func strptr(s string) *string { return &s }

func TestNewRequiresTableName(t *testing.T) {
	_, err := store.New(ddbmock.NewMemoryClient(), store.Config{})
	if !errors.Is(err, store.ErrMissingTableName) {
		t.Errorf("expected ErrMissingTableName, got %v", err)
	}
}

func TestCreateAndGetPerson(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := store.Person{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: strptr("1815-12-10"),
		Gender:      strptr("female"),
	}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated id")
	}
	if p.CreatedAt == "" || p.UpdatedAt != p.CreatedAt {
		t.Errorf("expected matching timestamps, got %q / %q", p.CreatedAt, p.UpdatedAt)
	}

	got, err := s.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if got == nil {
		t.Fatal("expected person, got nil")
	}
	if got.FirstName != "Ada" || got.LastName != "Lovelace" {
		t.Errorf("unexpected person %+v", got)
	}
	if got.DateOfBirth == nil || *got.DateOfBirth != "1815-12-10" {
		t.Errorf("unexpected dateOfBirth %v", got.DateOfBirth)
	}
}

func TestGetPersonAbsent(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.GetPerson(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get absent person: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent person, got %+v", got)
	}
}

func TestCreatePersonValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		person store.Person
	}{
		{"missing firstName", store.Person{LastName: "Turing"}},
		{"missing lastName", store.Person{FirstName: "Alan"}},
		{"invalid gender", store.Person{FirstName: "Alan", LastName: "Turing", Gender: strptr("unknown")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreatePerson(ctx, &tt.person)
			var verr *store.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreatePersonRejectsSeparatorInID(t *testing.T) {
	s, _ := newTestStore(t)

	p := store.Person{ID: "bad#id", FirstName: "A", LastName: "B"}
	err := s.CreatePerson(context.Background(), &p)
	if !errors.Is(err, keys.ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

func TestPutPersonReplacesAndBackfillsTimestamps(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, store.WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	p := store.Person{FirstName: "Edsger", LastName: "Dijkstra", Gender: strptr("male")}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}

	// A bare upsert over the same id replaces the item wholesale and
	// fills both timestamps from the clock.
	replacement := store.Person{ID: p.ID, FirstName: "Edsger W.", LastName: "Dijkstra"}
	if err := s.PutPerson(ctx, &replacement); err != nil {
		t.Fatalf("put person: %v", err)
	}
	want := frozen.Format(time.RFC3339Nano)
	if replacement.UpdatedAt != want || replacement.CreatedAt != want {
		t.Errorf("expected backfilled timestamps %q, got created=%q updated=%q",
			want, replacement.CreatedAt, replacement.UpdatedAt)
	}

	got, err := s.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if got.FirstName != "Edsger W." {
		t.Errorf("expected replaced first name, got %q", got.FirstName)
	}
	if got.Gender != nil {
		t.Errorf("full replace must drop absent fields, got gender %q", *got.Gender)
	}

	// Caller-supplied timestamps are preserved as-is.
	stamped := store.Person{
		ID:        p.ID,
		FirstName: "Edsger",
		LastName:  "Dijkstra",
		CreatedAt: "2020-01-01T00:00:00Z",
		UpdatedAt: "2021-01-01T00:00:00Z",
	}
	if err := s.PutPerson(ctx, &stamped); err != nil {
		t.Fatalf("put person: %v", err)
	}
	got, err = s.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if got.CreatedAt != "2020-01-01T00:00:00Z" || got.UpdatedAt != "2021-01-01T00:00:00Z" {
		t.Errorf("expected preserved timestamps, got created=%q updated=%q",
			got.CreatedAt, got.UpdatedAt)
	}

	// An upsert with only updatedAt set copies it into createdAt.
	partial := store.Person{ID: p.ID, FirstName: "E", LastName: "D", UpdatedAt: "2022-05-05T00:00:00Z"}
	if err := s.PutPerson(ctx, &partial); err != nil {
		t.Fatalf("put person: %v", err)
	}
	if partial.CreatedAt != "2022-05-05T00:00:00Z" {
		t.Errorf("expected createdAt copied from updatedAt, got %q", partial.CreatedAt)
	}

	if err := s.PutPerson(ctx, &store.Person{FirstName: "X", LastName: "Y"}); err == nil {
		t.Error("expected error for upsert without id")
	}
}

func TestUpdatePersonMergesPatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := store.Person{FirstName: "Grace", LastName: "Hoper"}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}

	updated, err := s.UpdatePerson(ctx, p.ID, store.PersonPatch{LastName: strptr("Hopper")})
	if err != nil {
		t.Fatalf("update person: %v", err)
	}
	if updated.LastName != "Hopper" {
		t.Errorf("expected patched last name, got %q", updated.LastName)
	}
	if updated.FirstName != "Grace" {
		t.Errorf("untouched field changed: %q", updated.FirstName)
	}
	if updated.CreatedAt != p.CreatedAt {
		t.Errorf("createdAt must not change on update")
	}
}

func TestUpdatePersonAbsent(t *testing.T) {
	s, _ := newTestStore(t)

	updated, err := s.UpdatePerson(context.Background(), "nope", store.PersonPatch{FirstName: strptr("X")})
	if err != nil {
		t.Fatalf("update absent person: %v", err)
	}
	if updated != nil {
		t.Errorf("expected nil result for absent person, got %+v", updated)
	}
}

func TestUpdatePersonMonotonicTimestamps(t *testing.T) {
	// A frozen clock forces the monotonicity bump.
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, store.WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	p := store.Person{FirstName: "Barbara", LastName: "Liskov"}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}

	prev, err := time.Parse(time.RFC3339Nano, p.UpdatedAt)
	if err != nil {
		t.Fatalf("parse updatedAt: %v", err)
	}

	for i := 0; i < 3; i++ {
		updated, err := s.UpdatePerson(ctx, p.ID, store.PersonPatch{FirstName: strptr("Barbara")})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		cur, err := time.Parse(time.RFC3339Nano, updated.UpdatedAt)
		if err != nil {
			t.Fatalf("parse updatedAt: %v", err)
		}
		if !cur.After(prev) {
			t.Fatalf("update %d: updatedAt %v not after previous %v", i, cur, prev)
		}
		prev = cur
	}
}

func TestListPersonsOrdering(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range [][2]string{
		{"Alan", "Turing"},
		{"Ada", "Lovelace"},
		{"Grace", "Hopper"},
	} {
		p := store.Person{FirstName: name[0], LastName: name[1]}
		if err := s.CreatePerson(ctx, &p); err != nil {
			t.Fatalf("create person: %v", err)
		}
	}

	persons, err := s.ListPersons(ctx)
	if err != nil {
		t.Fatalf("list persons: %v", err)
	}
	if len(persons) != 3 {
		t.Fatalf("expected 3 persons, got %d", len(persons))
	}
	want := []string{"Hopper", "Lovelace", "Turing"}
	for i, p := range persons {
		if p.LastName != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], p.LastName)
		}
	}
}

func TestChildCRUD(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := store.Person{FirstName: "Ada", LastName: "Lovelace"}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}

	addr := store.Address{
		PersonID:   p.ID,
		Street:     "12 St James Square",
		City:       "London",
		PostalCode: "SW1Y 4JH",
		Country:    "UK",
		IsPrimary:  true,
	}
	if err := s.CreateAddress(ctx, &addr); err != nil {
		t.Fatalf("create address: %v", err)
	}
	if addr.ID == "" {
		t.Fatal("expected generated address id")
	}

	addrs, err := s.ListAddresses(ctx, p.ID)
	if err != nil {
		t.Fatalf("list addresses: %v", err)
	}
	if len(addrs) != 1 || addrs[0].City != "London" {
		t.Fatalf("unexpected addresses %+v", addrs)
	}

	addr.City = "Ockham"
	if err := s.UpdateAddress(ctx, &addr); err != nil {
		t.Fatalf("update address: %v", err)
	}
	addrs, _ = s.ListAddresses(ctx, p.ID)
	if len(addrs) != 1 || addrs[0].City != "Ockham" {
		t.Fatalf("expected replaced address, got %+v", addrs)
	}

	if err := s.DeleteAddress(ctx, p.ID, addr.ID); err != nil {
		t.Fatalf("delete address: %v", err)
	}
	addrs, _ = s.ListAddresses(ctx, p.ID)
	if len(addrs) != 0 {
		t.Fatalf("expected no addresses, got %+v", addrs)
	}

	// Deleting an absent item is a no-op.
	if err := s.DeleteAddress(ctx, p.ID, addr.ID); err != nil {
		t.Fatalf("delete absent address: %v", err)
	}
}

func TestListChildrenAbsentParent(t *testing.T) {
	s, _ := newTestStore(t)

	banks, err := s.ListBankAccounts(context.Background(), "nope")
	if err != nil {
		t.Fatalf("list for absent parent: %v", err)
	}
	if len(banks) != 0 {
		t.Errorf("expected empty result, got %+v", banks)
	}
}

func TestChildValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	c := store.ContactInfo{PersonID: "p-1", Type: "fax", Value: "123"}
	err := s.CreateContactInfo(ctx, &c)
	var verr *store.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad contact type, got %v", err)
	}
	if verr.Field != "type" {
		t.Errorf("expected field 'type', got %q", verr.Field)
	}
}

func TestBankAccountDefaultType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	b := store.BankAccount{PersonID: "p-1", BankName: "Midland", IBAN: "GB00MID0001"}
	if err := s.CreateBankAccount(ctx, &b); err != nil {
		t.Fatalf("create bank account: %v", err)
	}

	banks, err := s.ListBankAccounts(ctx, "p-1")
	if err != nil {
		t.Fatalf("list bank accounts: %v", err)
	}
	if len(banks) != 1 {
		t.Fatalf("expected 1 bank account, got %d", len(banks))
	}
	if banks[0].AccountType != "checking" {
		t.Errorf("expected default accountType 'checking', got %q", banks[0].AccountType)
	}
}

func TestGetPersonWithChildren(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := store.Person{FirstName: "Alan", LastName: "Turing"}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}
	addr := store.Address{PersonID: p.ID, Street: "1 Park Lane", City: "London", PostalCode: "W1", Country: "UK"}
	if err := s.CreateAddress(ctx, &addr); err != nil {
		t.Fatalf("create address: %v", err)
	}
	job := store.Employment{PersonID: p.ID, Company: "Bletchley", Position: "Cryptanalyst", StartDate: "1939-09-04", IsCurrent: true}
	if err := s.CreateEmployment(ctx, &job); err != nil {
		t.Fatalf("create employment: %v", err)
	}

	rec, err := s.GetPersonWithChildren(ctx, p.ID)
	if err != nil {
		t.Fatalf("composite read: %v", err)
	}
	if rec.Person == nil || rec.Person.ID != p.ID {
		t.Fatalf("expected person in record, got %+v", rec.Person)
	}
	if len(rec.Addresses) != 1 || len(rec.Employments) != 1 {
		t.Errorf("unexpected children: %d addresses, %d employments", len(rec.Addresses), len(rec.Employments))
	}
	if len(rec.BankAccounts) != 0 || len(rec.ContactInfos) != 0 {
		t.Errorf("expected empty collections, got %+v %+v", rec.BankAccounts, rec.ContactInfos)
	}
}

func TestCheckPrimaryExclusivity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := store.Person{FirstName: "Donald", LastName: "Knuth"}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}

	// Two primary addresses: the store accepts both by design.
	for i := 0; i < 2; i++ {
		a := store.Address{PersonID: p.ID, Street: "x", City: "Stanford", PostalCode: "94305", Country: "USA", IsPrimary: true}
		if err := s.CreateAddress(ctx, &a); err != nil {
			t.Fatalf("create address: %v", err)
		}
	}
	// One primary email and one primary phone are not a violation.
	for _, c := range []store.ContactInfo{
		{PersonID: p.ID, Type: store.ContactEmail, Value: "don@example.com", IsPrimary: true},
		{PersonID: p.ID, Type: store.ContactPhone, Value: "555-0100", IsPrimary: true},
	} {
		if err := s.CreateContactInfo(ctx, &c); err != nil {
			t.Fatalf("create contact: %v", err)
		}
	}

	violations, err := s.CheckPrimaryExclusivity(ctx, p.ID)
	if err != nil {
		t.Fatalf("exclusivity check: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %+v", violations)
	}
	if violations[0].Type != keys.TypeAddress || len(violations[0].IDs) != 2 {
		t.Errorf("unexpected violation %+v", violations[0])
	}
}

func TestTransientErrorsRetry(t *testing.T) {
	client := ddbmock.NewMockClient(t)
	cfg := store.DefaultConfig("rolodex-test")
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	s, err := store.New(client, cfg)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	calls := 0
	client.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
		calls++
		if calls < 3 {
			return nil, &types.ProvisionedThroughputExceededException{}
		}
		return &dynamodb.GetItemOutput{}, nil
	}

	got, err := s.GetPerson(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil person, got %+v", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestTransientErrorsExhaustRetries(t *testing.T) {
	client := ddbmock.NewMockClient(t)
	cfg := store.DefaultConfig("rolodex-test")
	cfg.MaxRetries = 1
	cfg.RetryBaseDelay = time.Millisecond
	s, err := store.New(client, cfg)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	client.GetFunc = func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
		return nil, &types.ProvisionedThroughputExceededException{}
	}

	_, err = s.GetPerson(context.Background(), "p-1")
	if !errors.Is(err, store.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
