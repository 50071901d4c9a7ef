package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/rolodex/keys"
)

// DeletePerson removes a person and every child item owned by it.
// See DeletePersonCascade.
func (s *Store) DeletePerson(ctx context.Context, personID string) (int, error) {
	return s.DeletePersonCascade(ctx, personID)
}

// DeletePersonCascade enumerates all four child collections of personID
// with parallel reads, then concurrently deletes every found child plus
// the person item itself. It returns the number of items actually
// removed from the table.
//
// The cascade is not atomic: a crash or network error mid-way can leave
// orphaned children, reported as a *PartialCascadeError. Deleting an
// already-absent item is a no-op, so callers needing strict semantics
// can re-run the cascade until it reports zero items found.
func (s *Store) DeletePersonCascade(ctx context.Context, personID string) (int, error) {
	childKeys, err := s.enumerateChildren(ctx, personID)
	if err != nil {
		return 0, err
	}

	targets := make([]string, 0, len(childKeys)+1)
	targets = append(targets, childKeys...)
	targets = append(targets, keys.PersonSK())

	var (
		deleted int64
		mu      sync.Mutex
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sk := range targets {
		sk := sk
		g.Go(func() error {
			removed, derr := s.deleteByKey(gctx, personID, sk)
			if derr != nil {
				mu.Lock()
				errs = append(errs, derr)
				mu.Unlock()
				// Keep going; the cascade is best effort and idempotent.
				return nil
			}
			if removed {
				atomic.AddInt64(&deleted, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	count := int(atomic.LoadInt64(&deleted))
	if len(errs) > 0 {
		s.logger.Warn("cascade delete incomplete",
			"personId", personID,
			"found", len(targets),
			"deleted", count,
		)
		return count, &PartialCascadeError{
			PersonID: personID,
			Found:    len(targets),
			Deleted:  count,
			Errs:     errs,
		}
	}

	s.logger.Info("cascade delete completed",
		"personId", personID,
		"deleted", count,
	)
	return count, nil
}

// enumerateChildren lists the sort keys of every child item of personID,
// reading the four collections concurrently.
func (s *Store) enumerateChildren(ctx context.Context, personID string) ([]string, error) {
	var (
		mu  sync.Mutex
		sks []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range keys.ChildTypes {
		t := t
		g.Go(func() error {
			found, err := s.childSortKeys(gctx, t, personID)
			if err != nil {
				return err
			}
			mu.Lock()
			sks = append(sks, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sks, nil
}

func (s *Store) childSortKeys(ctx context.Context, t keys.EntityType, personID string) ([]string, error) {
	items, err := s.queryAllPages(ctx, s.childPrefixQuery(t, personID))
	if err != nil {
		return nil, err
	}
	sks := make([]string, 0, len(items))
	for _, item := range items {
		_, sk, err := itemKey(item)
		if err != nil {
			return nil, err
		}
		sks = append(sks, sk)
	}
	return sks, nil
}

func (s *Store) childPrefixQuery(t keys.EntityType, personID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(s.config.TableName),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPK,
			"#sk": AttrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     stringAV(keys.PersonPK(personID)),
			":prefix": stringAV(keys.ChildSKPrefix(t)),
		},
		ProjectionExpression: aws.String("#pk, #sk"),
	}
}

// deleteByKey removes one item and reports whether it actually existed.
func (s *Store) deleteByKey(ctx context.Context, personID, sk string) (bool, error) {
	var out *dynamodb.DeleteItemOutput
	err := s.withRetry(ctx, "cascade delete item", func() error {
		var err error
		out, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:    aws.String(s.config.TableName),
			Key:          primaryKey(keys.PersonPK(personID), sk),
			ReturnValues: types.ReturnValueAllOld,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return len(out.Attributes) > 0, nil
}
