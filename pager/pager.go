// Package pager walks all five entity streams of the rolodex table in
// lockstep. Each call to NextPage issues one bounded query per entity
// type against the global item index, merges the five result sets into
// one page, and returns a composite cursor carrying one independent
// sub-cursor per stream. It exists to feed search index builds without
// exceeding per-request payload limits; it makes no cross-type ordering
// guarantee.
package pager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/rolodex/internal/backoff"
	"github.com/jacentio/rolodex/keys"
	"github.com/jacentio/rolodex/store"
)

// SubCursor is the continuation token of one entity stream: the
// exclusive start key of its next query. A nil SubCursor means the
// stream is exhausted.
type SubCursor = store.Item

// Cursor is the composite continuation token: one sub-cursor per entity
// type. Every sub-cursor advances independently; propagating only one of
// them would silently starve the other four streams.
type Cursor struct {
	Person      SubCursor
	Address     SubCursor
	BankAccount SubCursor
	ContactInfo SubCursor
	Employment  SubCursor
}

// Exhausted reports whether every stream has been fully consumed.
func (c *Cursor) Exhausted() bool {
	return c.Person == nil && c.Address == nil && c.BankAccount == nil &&
		c.ContactInfo == nil && c.Employment == nil
}

func (c *Cursor) sub(t keys.EntityType) SubCursor {
	switch t {
	case keys.TypePerson:
		return c.Person
	case keys.TypeAddress:
		return c.Address
	case keys.TypeBankAccount:
		return c.BankAccount
	case keys.TypeContactInfo:
		return c.ContactInfo
	default:
		return c.Employment
	}
}

func (c *Cursor) setSub(t keys.EntityType, sc SubCursor) {
	switch t {
	case keys.TypePerson:
		c.Person = sc
	case keys.TypeAddress:
		c.Address = sc
	case keys.TypeBankAccount:
		c.BankAccount = sc
	case keys.TypeContactInfo:
		c.ContactInfo = sc
	default:
		c.Employment = sc
	}
}

// Page is one merged page of results, grouped by type. Within a type the
// global index ordering (person id, then type, then child id) is
// preserved, keeping one person's items contiguous.
type Page struct {
	Persons      []store.Person
	Addresses    []store.Address
	BankAccounts []store.BankAccount
	ContactInfos []store.ContactInfo
	Employments  []store.Employment

	// Cursor resumes the walk. Exhausted is true when every stream has
	// been fully consumed; Cursor is then spent.
	Cursor    *Cursor
	Exhausted bool
}

// Count returns the total number of entities in the page.
func (p *Page) Count() int {
	return len(p.Persons) + len(p.Addresses) + len(p.BankAccounts) +
		len(p.ContactInfos) + len(p.Employments)
}

func (p *Page) merge(other *Page) {
	p.Persons = append(p.Persons, other.Persons...)
	p.Addresses = append(p.Addresses, other.Addresses...)
	p.BankAccounts = append(p.BankAccounts, other.BankAccounts...)
	p.ContactInfos = append(p.ContactInfos, other.ContactInfos...)
	p.Employments = append(p.Employments, other.Employments...)
}

// Pager issues the per-type queries. Safe for concurrent use.
type Pager struct {
	client store.DynamoDBClient
	config store.Config
	logger *slog.Logger
	limit  int
}

// Option configures optional Pager behavior.
type Option func(*Pager)

// WithLogger sets the pager logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pager) { p.logger = logger }
}

// WithPageLimit bounds each per-type query to n items per page.
// Default: 100.
func WithPageLimit(n int) Option {
	return func(p *Pager) {
		if n > 0 {
			p.limit = n
		}
	}
}

// New creates a Pager over the same table and client the store uses.
func New(client store.DynamoDBClient, config store.Config, opts ...Option) (*Pager, error) {
	if config.TableName == "" {
		return nil, store.ErrMissingTableName
	}
	if config.GlobalIndexName == "" {
		config.GlobalIndexName = store.DefaultConfig(config.TableName).GlobalIndexName
	}
	p := &Pager{
		client: client,
		config: config,
		logger: slog.Default(),
		limit:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NextPage fetches the next page of every stream. A nil cursor starts a
// fresh walk. The five queries run concurrently; the page is complete
// only once all five have returned.
func (p *Pager) NextPage(ctx context.Context, cursor *Cursor) (*Page, error) {
	fresh := cursor == nil

	page := &Page{Cursor: &Cursor{}}
	types := []keys.EntityType{
		keys.TypePerson, keys.TypeAddress, keys.TypeBankAccount,
		keys.TypeContactInfo, keys.TypeEmployment,
	}

	results := make([]streamResult, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		i, t := i, t
		var start SubCursor
		if !fresh {
			start = cursor.sub(t)
			if start == nil {
				// Stream already exhausted; nothing to fetch.
				continue
			}
		}
		g.Go(func() error {
			res, err := p.fetchStream(gctx, t, start)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, t := range types {
		res := results[i]
		if err := page.appendItems(t, res.items); err != nil {
			return nil, err
		}
		page.Cursor.setSub(t, res.next)
	}
	page.Exhausted = page.Cursor.Exhausted()
	return page, nil
}

// DrainAll walks every stream to exhaustion and returns the accumulated
// result. Intended for index rebuilds, not interactive paths: the total
// volume is unbounded.
func (p *Pager) DrainAll(ctx context.Context) (*Page, error) {
	all := &Page{Exhausted: true}
	var cursor *Cursor
	for {
		page, err := p.NextPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all.merge(page)
		if page.Exhausted {
			p.logger.Info("drained all entity streams", "entities", all.Count())
			return all, nil
		}
		cursor = page.Cursor
	}
}

type streamResult struct {
	items []store.Item
	next  SubCursor
}

func (p *Pager) fetchStream(ctx context.Context, t keys.EntityType, start SubCursor) (streamResult, error) {
	keyCond := expression.Key(store.AttrGlobalPK).Equal(expression.Value(keys.GlobalPartition))
	filter := expression.Name(store.AttrEntityType).Equal(expression.Value(string(t)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return streamResult{}, fmt.Errorf("build query for %s: %w", t, err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(p.config.TableName),
		IndexName:                 aws.String(p.config.GlobalIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(int32(p.limit)),
	}
	if start != nil {
		input.ExclusiveStartKey = start
	}

	var out *dynamodb.QueryOutput
	err = backoff.Do(ctx, backoff.Policy{
		MaxRetries: p.config.MaxRetries,
		BaseDelay:  p.config.RetryBaseDelay,
	}, p.logger, "page "+string(t), func() error {
		var qerr error
		out, qerr = p.client.Query(ctx, input)
		return qerr
	})
	if errors.Is(err, backoff.ErrExhausted) {
		return streamResult{}, fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
	}
	if err != nil {
		return streamResult{}, fmt.Errorf("query %s stream: %w", t, err)
	}

	res := streamResult{items: out.Items}
	if len(out.LastEvaluatedKey) > 0 {
		res.next = out.LastEvaluatedKey
	}
	return res, nil
}

func (p *Page) appendItems(t keys.EntityType, items []store.Item) error {
	for _, item := range items {
		switch t {
		case keys.TypePerson:
			var v store.Person
			if err := attributevalue.UnmarshalMap(item, &v); err != nil {
				return fmt.Errorf("unmarshal person: %w", err)
			}
			p.Persons = append(p.Persons, v)
		case keys.TypeAddress:
			var v store.Address
			if err := attributevalue.UnmarshalMap(item, &v); err != nil {
				return fmt.Errorf("unmarshal address: %w", err)
			}
			p.Addresses = append(p.Addresses, v)
		case keys.TypeBankAccount:
			var v store.BankAccount
			if err := attributevalue.UnmarshalMap(item, &v); err != nil {
				return fmt.Errorf("unmarshal bank account: %w", err)
			}
			p.BankAccounts = append(p.BankAccounts, v)
		case keys.TypeContactInfo:
			var v store.ContactInfo
			if err := attributevalue.UnmarshalMap(item, &v); err != nil {
				return fmt.Errorf("unmarshal contact info: %w", err)
			}
			p.ContactInfos = append(p.ContactInfos, v)
		case keys.TypeEmployment:
			var v store.Employment
			if err := attributevalue.UnmarshalMap(item, &v); err != nil {
				return fmt.Errorf("unmarshal employment: %w", err)
			}
			p.Employments = append(p.Employments, v)
		}
	}
	return nil
}
