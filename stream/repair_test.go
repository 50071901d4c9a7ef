package stream_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/rolodex/ddbmock"
	"github.com/jacentio/rolodex/keys"
	"github.com/jacentio/rolodex/store"
	"github.com/jacentio/rolodex/stream"
)

func removeEvent(pk, sk string) events.DynamoDBEvent {
	return events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			{
				EventID:   "evt-1",
				EventName: "REMOVE",
				Change: events.DynamoDBStreamRecord{
					Keys: map[string]events.DynamoDBAttributeValue{
						store.AttrPK: events.NewStringAttribute(pk),
						store.AttrSK: events.NewStringAttribute(sk),
					},
				},
			},
		},
	}
}

func TestCascadeRepairDeletesOrphans(t *testing.T) {
	client := ddbmock.NewMemoryClient()
	s, err := store.New(client, store.DefaultConfig("rolodex-test"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	p := store.Person{FirstName: "John", LastName: "Backus"}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}
	for i := 0; i < 3; i++ {
		a := store.Address{PersonID: p.ID, Street: "x", City: "NYC", PostalCode: "10001", Country: "USA"}
		if err := s.CreateAddress(ctx, &a); err != nil {
			t.Fatalf("create address: %v", err)
		}
	}

	// Simulate an interrupted cascade: the profile item is gone, the
	// children are orphaned.
	if p2, _ := s.GetPerson(ctx, p.ID); p2 == nil {
		t.Fatal("person missing before repair setup")
	}
	if _, err := s.DeletePersonCascade(ctx, p.ID); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	// Re-add the orphans without the profile.
	for i := 0; i < 3; i++ {
		a := store.Address{PersonID: p.ID, Street: "x", City: "NYC", PostalCode: "10001", Country: "USA"}
		if err := s.CreateAddress(ctx, &a); err != nil {
			t.Fatalf("recreate address: %v", err)
		}
	}
	if client.Len() != 3 {
		t.Fatalf("expected 3 orphans, got %d items", client.Len())
	}

	h := stream.NewHandler(s, nil)
	event := removeEvent(keys.PersonPK(p.ID), keys.PersonSK())
	if err := h.HandleCascadeRepair(ctx, event); err != nil {
		t.Fatalf("repair: %v", err)
	}
	if client.Len() != 0 {
		t.Errorf("expected empty table after repair, got %d items", client.Len())
	}
}

func TestCascadeRepairIgnoresIrrelevantRecords(t *testing.T) {
	client := ddbmock.NewMemoryClient()
	s, err := store.New(client, store.DefaultConfig("rolodex-test"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ctx := context.Background()

	p := store.Person{FirstName: "Grace", LastName: "Hopper"}
	if err := s.CreatePerson(ctx, &p); err != nil {
		t.Fatalf("create person: %v", err)
	}

	h := stream.NewHandler(s, nil)

	tests := []struct {
		name  string
		event events.DynamoDBEvent
	}{
		{
			"insert event",
			events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{{
				EventName: "INSERT",
				Change: events.DynamoDBStreamRecord{Keys: map[string]events.DynamoDBAttributeValue{
					store.AttrPK: events.NewStringAttribute(keys.PersonPK(p.ID)),
					store.AttrSK: events.NewStringAttribute(keys.PersonSK()),
				}},
			}}},
		},
		{
			"child removal",
			removeEvent(keys.PersonPK(p.ID), keys.ChildSK(keys.TypeAddress, "a-1")),
		},
		{
			"foreign key shape",
			removeEvent("ORDER:123", "META"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.HandleCascadeRepair(ctx, tt.event); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if got, _ := s.GetPerson(ctx, p.ID); got == nil {
				t.Fatal("person deleted by an irrelevant record")
			}
		})
	}
}
