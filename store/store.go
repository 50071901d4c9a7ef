package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/rolodex/keys"
	"github.com/jacentio/rolodex/schema"
)

// DynamoDBClient is the narrow client surface the store depends on.
// Tests substitute an in-memory implementation.
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Clock returns the current time; injectable for timestamp tests.
type Clock func() time.Time

// Store provides CRUD for persons and their child collections against a
// single DynamoDB table. It holds no locks; concurrent writers to the
// same entity get last-write-wins semantics.
type Store struct {
	client  DynamoDBClient
	config  Config
	logger  *slog.Logger
	tick    Clock
	schemas map[keys.EntityType]schema.Attributes
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithLogger sets the store logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock sets the time source used for timestamps.
func WithClock(tick Clock) Option {
	return func(s *Store) { s.tick = tick }
}

// New creates a Store. The attribute schemas for all five entity types
// are derived here, once.
func New(client DynamoDBClient, config Config, opts ...Option) (*Store, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	s := &Store{
		client: client,
		config: config,
		logger: slog.Default(),
		tick:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.schemas = make(map[keys.EntityType]schema.Attributes, len(entitySchemas))
	for t, fields := range entitySchemas {
		s.schemas[t] = schema.Derive(fields, s.logger)
	}
	return s, nil
}

// --- Person operations ---

// CreatePerson stores a new person. A missing id is generated; creation
// and update timestamps are set to now.
func (s *Store) CreatePerson(ctx context.Context, p *Person) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if err := keys.ValidateID(p.ID); err != nil {
		return err
	}
	now := s.tick().Format(time.RFC3339Nano)
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.putPerson(ctx, p)
}

// PutPerson upserts a person item as-is (full replace).
func (s *Store) PutPerson(ctx context.Context, p *Person) error {
	if err := keys.ValidateID(p.ID); err != nil {
		return err
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = s.tick().Format(time.RFC3339Nano)
	}
	if p.CreatedAt == "" {
		p.CreatedAt = p.UpdatedAt
	}
	return s.putPerson(ctx, p)
}

func (s *Store) putPerson(ctx context.Context, p *Person) error {
	item, err := s.marshalPerson(p)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "put person", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.config.TableName),
			Item:      item,
		})
		return err
	})
}

// GetPerson retrieves a person by id. An absent id is not an error; the
// result is simply nil.
func (s *Store) GetPerson(ctx context.Context, id string) (*Person, error) {
	var out *dynamodb.GetItemOutput
	err := s.withRetry(ctx, "get person", func() error {
		var err error
		out, err = s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.config.TableName),
			Key:       primaryKey(keys.PersonPK(id), keys.PersonSK()),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var p Person
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal person: %w", err)
	}
	return &p, nil
}

// UpdatePerson merges the non-nil patch fields into the stored person and
// refreshes updatedAt. The new updatedAt is strictly greater than the
// previous one even when the clock has not advanced. Updating an absent
// person returns nil without writing.
func (s *Store) UpdatePerson(ctx context.Context, id string, patch PersonPatch) (*Person, error) {
	p, err := s.GetPerson(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	if patch.FirstName != nil {
		p.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		p.LastName = *patch.LastName
	}
	if patch.DateOfBirth != nil {
		p.DateOfBirth = patch.DateOfBirth
	}
	if patch.Gender != nil {
		p.Gender = patch.Gender
	}

	now := s.tick()
	if prev, perr := time.Parse(time.RFC3339Nano, p.UpdatedAt); perr == nil && !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	p.UpdatedAt = now.Format(time.RFC3339Nano)

	if err := s.putPerson(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPersons returns every person, ordered by last name, first name, id.
func (s *Store) ListPersons(ctx context.Context) ([]Person, error) {
	items, err := s.queryAllPages(ctx, s.listQuery(keys.TypePerson))
	if err != nil {
		return nil, err
	}
	persons := make([]Person, 0, len(items))
	for _, item := range items {
		var p Person
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return nil, fmt.Errorf("unmarshal person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, nil
}

// GetPersonWithChildren fetches a person and all four child collections
// with a single partition query. A missing person yields a nil Person
// with empty child slices.
func (s *Store) GetPersonWithChildren(ctx context.Context, personID string) (*PersonRecord, error) {
	keyCond := expression.Key(AttrPK).Equal(expression.Value(keys.PersonPK(personID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items, err := s.queryAllPages(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}

	rec := &PersonRecord{}
	for _, item := range items {
		pk, sk, err := itemKey(item)
		if err != nil {
			return nil, err
		}
		parsed, err := keys.ParseKey(pk, sk)
		if err != nil {
			return nil, err
		}
		switch parsed.Type {
		case keys.TypePerson:
			var p Person
			if err := attributevalue.UnmarshalMap(item, &p); err != nil {
				return nil, fmt.Errorf("unmarshal person: %w", err)
			}
			rec.Person = &p
		case keys.TypeAddress:
			var a Address
			if err := attributevalue.UnmarshalMap(item, &a); err != nil {
				return nil, fmt.Errorf("unmarshal address: %w", err)
			}
			rec.Addresses = append(rec.Addresses, a)
		case keys.TypeBankAccount:
			var b BankAccount
			if err := attributevalue.UnmarshalMap(item, &b); err != nil {
				return nil, fmt.Errorf("unmarshal bank account: %w", err)
			}
			rec.BankAccounts = append(rec.BankAccounts, b)
		case keys.TypeContactInfo:
			var c ContactInfo
			if err := attributevalue.UnmarshalMap(item, &c); err != nil {
				return nil, fmt.Errorf("unmarshal contact info: %w", err)
			}
			rec.ContactInfos = append(rec.ContactInfos, c)
		case keys.TypeEmployment:
			var e Employment
			if err := attributevalue.UnmarshalMap(item, &e); err != nil {
				return nil, fmt.Errorf("unmarshal employment: %w", err)
			}
			rec.Employments = append(rec.Employments, e)
		}
	}
	return rec, nil
}

// --- Child operations ---

// CreateAddress stores an address for its person. A missing id is generated.
func (s *Store) CreateAddress(ctx context.Context, a *Address) error {
	return createChild(ctx, s, a)
}

// UpdateAddress fully replaces an address item.
func (s *Store) UpdateAddress(ctx context.Context, a *Address) error {
	return putChild(ctx, s, a)
}

// DeleteAddress removes one address. Deleting an absent item is a no-op.
func (s *Store) DeleteAddress(ctx context.Context, personID, id string) error {
	return s.deleteChild(ctx, keys.TypeAddress, personID, id)
}

// ListAddresses returns all addresses of one person.
func (s *Store) ListAddresses(ctx context.Context, personID string) ([]Address, error) {
	return listChildren[Address](ctx, s, personID)
}

// CreateBankAccount stores a bank account for its person.
func (s *Store) CreateBankAccount(ctx context.Context, b *BankAccount) error {
	return createChild(ctx, s, b)
}

// UpdateBankAccount fully replaces a bank account item.
func (s *Store) UpdateBankAccount(ctx context.Context, b *BankAccount) error {
	return putChild(ctx, s, b)
}

// DeleteBankAccount removes one bank account.
func (s *Store) DeleteBankAccount(ctx context.Context, personID, id string) error {
	return s.deleteChild(ctx, keys.TypeBankAccount, personID, id)
}

// ListBankAccounts returns all bank accounts of one person.
func (s *Store) ListBankAccounts(ctx context.Context, personID string) ([]BankAccount, error) {
	return listChildren[BankAccount](ctx, s, personID)
}

// CreateContactInfo stores a contact channel for its person.
func (s *Store) CreateContactInfo(ctx context.Context, c *ContactInfo) error {
	return createChild(ctx, s, c)
}

// UpdateContactInfo fully replaces a contact info item.
func (s *Store) UpdateContactInfo(ctx context.Context, c *ContactInfo) error {
	return putChild(ctx, s, c)
}

// DeleteContactInfo removes one contact channel.
func (s *Store) DeleteContactInfo(ctx context.Context, personID, id string) error {
	return s.deleteChild(ctx, keys.TypeContactInfo, personID, id)
}

// ListContactInfos returns all contact channels of one person.
func (s *Store) ListContactInfos(ctx context.Context, personID string) ([]ContactInfo, error) {
	return listChildren[ContactInfo](ctx, s, personID)
}

// CreateEmployment stores an employment record for its person.
func (s *Store) CreateEmployment(ctx context.Context, e *Employment) error {
	return createChild(ctx, s, e)
}

// UpdateEmployment fully replaces an employment item.
func (s *Store) UpdateEmployment(ctx context.Context, e *Employment) error {
	return putChild(ctx, s, e)
}

// DeleteEmployment removes one employment record.
func (s *Store) DeleteEmployment(ctx context.Context, personID, id string) error {
	return s.deleteChild(ctx, keys.TypeEmployment, personID, id)
}

// ListEmployments returns all employment records of one person.
func (s *Store) ListEmployments(ctx context.Context, personID string) ([]Employment, error) {
	return listChildren[Employment](ctx, s, personID)
}

func createChild[T child](ctx context.Context, s *Store, v *T) error {
	if _, id := childIDs(v); id == "" {
		setChildID(v, NewID())
	}
	return putChild(ctx, s, v)
}

func putChild[T child](ctx context.Context, s *Store, v *T) error {
	t := childType[T]()
	personID, id := childIDs(v)
	if err := keys.ValidateID(id); err != nil {
		return err
	}
	if err := keys.ValidateID(personID); err != nil {
		return err
	}
	item, err := s.marshalChild(t, personID, id, v)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "put "+string(t), func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.config.TableName),
			Item:      item,
		})
		return err
	})
}

func (s *Store) deleteChild(ctx context.Context, t keys.EntityType, personID, id string) error {
	return s.withRetry(ctx, "delete "+string(t), func() error {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.config.TableName),
			Key:       primaryKey(keys.PersonPK(personID), keys.ChildSK(t, id)),
		})
		return err
	})
}

func listChildren[T child](ctx context.Context, s *Store, personID string) ([]T, error) {
	t := childType[T]()
	keyCond := expression.Key(AttrPK).Equal(expression.Value(keys.PersonPK(personID))).
		And(expression.Key(AttrSK).BeginsWith(keys.ChildSKPrefix(t)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items, err := s.queryAllPages(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := attributevalue.UnmarshalMap(item, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", t, err)
		}
		result = append(result, v)
	}
	return result, nil
}

// --- Marshaling and validation ---

func (s *Store) marshalPerson(p *Person) (Item, error) {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal person: %w", err)
	}
	if err := s.validateItem(keys.TypePerson, item); err != nil {
		return nil, err
	}
	item[AttrPK] = stringAV(keys.PersonPK(p.ID))
	item[AttrSK] = stringAV(keys.PersonSK())
	item[AttrListPK] = stringAV(keys.ListPartition(keys.TypePerson))
	item[AttrListSK] = stringAV(keys.PersonListSK(p.LastName, p.FirstName, p.ID))
	item[AttrGlobalPK] = stringAV(keys.GlobalPartition)
	item[AttrGlobalSK] = stringAV(keys.GlobalSK(keys.TypePerson, p.ID, ""))
	item[AttrEntityType] = stringAV(string(keys.TypePerson))
	return item, nil
}

func (s *Store) marshalChild(t keys.EntityType, personID, id string, v any) (Item, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", t, err)
	}
	if err := s.validateItem(t, item); err != nil {
		return nil, err
	}
	item[AttrPK] = stringAV(keys.PersonPK(personID))
	item[AttrSK] = stringAV(keys.ChildSK(t, id))
	item[AttrListPK] = stringAV(keys.ListPartition(t))
	item[AttrListSK] = stringAV(id)
	item[AttrGlobalPK] = stringAV(keys.GlobalPartition)
	item[AttrGlobalSK] = stringAV(keys.GlobalSK(t, personID, id))
	item[AttrEntityType] = stringAV(string(t))
	return item, nil
}

// validateItem checks an item against the entity's derived attribute
// schema, applying declared defaults for absent fields.
func (s *Store) validateItem(t keys.EntityType, item Item) error {
	attrs := s.schemas[t]
	for field, attr := range attrs {
		av, present := item[field]
		if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
			present = false
		}
		if sv, ok := av.(*types.AttributeValueMemberS); ok && sv.Value == "" {
			present = false
		}
		if !present {
			if attr.HasDefault {
				dv, err := attributevalue.Marshal(attr.Default)
				if err != nil {
					return fmt.Errorf("marshal default for %s.%s: %w", t, field, err)
				}
				item[field] = dv
				continue
			}
			if attr.Required {
				return &ValidationError{Entity: string(t), Field: field, Reason: "is required"}
			}
			delete(item, field)
			continue
		}
		if !storageMatches(av, attr.StorageType) {
			return &ValidationError{
				Entity: string(t), Field: field,
				Reason: fmt.Sprintf("must be of type %s", attr.StorageType),
			}
		}
		if attr.Allowed != nil && !allowedContains(attr.Allowed, av) {
			return &ValidationError{
				Entity: string(t), Field: field,
				Reason: fmt.Sprintf("must be one of %v", attr.Allowed),
			}
		}
	}
	return nil
}

func storageMatches(av types.AttributeValue, st schema.StorageType) bool {
	switch st {
	case schema.StorageString:
		_, ok := av.(*types.AttributeValueMemberS)
		return ok
	case schema.StorageNumber:
		_, ok := av.(*types.AttributeValueMemberN)
		return ok
	case schema.StorageBoolean:
		_, ok := av.(*types.AttributeValueMemberBOOL)
		return ok
	case schema.StorageList:
		_, ok := av.(*types.AttributeValueMemberL)
		return ok
	case schema.StorageMap:
		_, ok := av.(*types.AttributeValueMemberM)
		return ok
	default:
		return true
	}
}

func allowedContains(allowed []any, av types.AttributeValue) bool {
	sv, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		// Only string enums are declared; anything else passed the
		// storage type check already.
		return true
	}
	for _, a := range allowed {
		if s, ok := a.(string); ok && s == sv.Value {
			return true
		}
	}
	return false
}

// --- Query plumbing ---

// listQuery builds the index-A query that lists every item of one type.
func (s *Store) listQuery(t keys.EntityType) *dynamodb.QueryInput {
	keyCond := expression.Key(AttrListPK).Equal(expression.Value(keys.ListPartition(t)))
	// The single-key condition cannot fail to build.
	expr, _ := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	return &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		IndexName:                 aws.String(s.config.ListIndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
}

// queryAllPages drains a query, following LastEvaluatedKey. Each page
// fetch goes through the transient-error retry policy.
func (s *Store) queryAllPages(ctx context.Context, input *dynamodb.QueryInput) ([]Item, error) {
	var items []Item
	for {
		var out *dynamodb.QueryOutput
		err := s.withRetry(ctx, "query", func() error {
			var err error
			out, err = s.client.Query(ctx, input)
			return err
		})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func primaryKey(pk, sk string) Item {
	return Item{
		AttrPK: stringAV(pk),
		AttrSK: stringAV(sk),
	}
}

func stringAV(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func itemKey(item Item) (pk, sk string, err error) {
	pkAV, pkOK := item[AttrPK].(*types.AttributeValueMemberS)
	skAV, skOK := item[AttrSK].(*types.AttributeValueMemberS)
	if !pkOK || !skOK {
		return "", "", fmt.Errorf("%w: item missing key attributes", keys.ErrMalformedKey)
	}
	return pkAV.Value, skAV.Value, nil
}
