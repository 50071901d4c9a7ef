package ddbmock

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item mirrors the dynamodb attribute value map.
type Item = map[string]types.AttributeValue

// sortAttrFor maps a partition key attribute to its sort key attribute.
// The partition attribute in a key condition identifies which index a
// query targets, so MemoryClient never needs configured index names.
var sortAttrFor = map[string]string{
	"pk":     "sk",
	"gsi1pk": "gsi1sk",
	"gsi2pk": "gsi2sk",
}

// MemoryClient is an in-memory single-table DynamoDB emulator good
// enough for the query shapes this module issues: partition equality,
// optional begins_with on the sort key, an optional equality filter,
// Limit, and ExclusiveStartKey/LastEvaluatedKey paging.
type MemoryClient struct {
	mu    sync.Mutex
	items map[string]Item // primary key "pk\x00sk" -> item

	// FailNext, when non-nil, is returned by the next operation and then
	// cleared. Used to inject transient errors.
	FailNext error
}

// NewMemoryClient creates an empty in-memory table.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{items: map[string]Item{}}
}

// Len returns the number of stored items.
func (m *MemoryClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryClient) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func primaryKeyOf(item Item) (string, error) {
	pk, pkOK := item["pk"].(*types.AttributeValueMemberS)
	sk, skOK := item["sk"].(*types.AttributeValueMemberS)
	if !pkOK || !skOK {
		return "", fmt.Errorf("ddbmock: item missing pk/sk")
	}
	return pk.Value + "\x00" + sk.Value, nil
}

func copyItem(item Item) Item {
	dup := make(Item, len(item))
	for k, v := range item {
		dup[k] = v
	}
	return dup
}

func (m *MemoryClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	key, err := primaryKeyOf(params.Item)
	if err != nil {
		return nil, err
	}
	m.items[key] = copyItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MemoryClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	key, err := primaryKeyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *MemoryClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	key, err := primaryKeyOf(params.Key)
	if err != nil {
		return nil, err
	}
	out := &dynamodb.DeleteItemOutput{}
	if old, ok := m.items[key]; ok {
		if params.ReturnValues == types.ReturnValueAllOld {
			out.Attributes = copyItem(old)
		}
		delete(m.items, key)
	}
	return out, nil
}

var (
	beginsWithRe = regexp.MustCompile(`begins_with\s*\(\s*([\w.]+)\s*,\s*(:[\w.]+)\s*\)`)
	equalityRe   = regexp.MustCompile(`([\w.]+)\s*=\s*(:[\w.]+)`)
)

// keyCondition is the decoded form of the key condition expressions this
// module produces.
type keyCondition struct {
	partAttr  string
	partValue string
	sortAttr  string // empty when no sort condition
	sortPfx   string
}

func substituteNames(expr string, names map[string]string) string {
	for placeholder, attr := range names {
		expr = strings.ReplaceAll(expr, placeholder, attr)
	}
	return expr
}

func stringValue(values Item, ref string) (string, error) {
	av, ok := values[ref].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("ddbmock: expression value %s missing or not a string", ref)
	}
	return av.Value, nil
}

func parseKeyCondition(expr string, names map[string]string, values Item) (keyCondition, error) {
	expr = substituteNames(expr, names)
	var cond keyCondition

	if match := beginsWithRe.FindStringSubmatch(expr); match != nil {
		prefix, err := stringValue(values, match[2])
		if err != nil {
			return cond, err
		}
		cond.sortAttr = match[1]
		cond.sortPfx = prefix
		expr = beginsWithRe.ReplaceAllString(expr, "")
	}

	match := equalityRe.FindStringSubmatch(expr)
	if match == nil {
		return cond, fmt.Errorf("ddbmock: unsupported key condition %q", expr)
	}
	value, err := stringValue(values, match[2])
	if err != nil {
		return cond, err
	}
	cond.partAttr = match[1]
	cond.partValue = value
	return cond, nil
}

// parseFilter decodes the only filter shape this module uses: a single
// attribute equality. Returns empty attr when there is no filter.
func parseFilter(expr *string, names map[string]string, values Item) (attr, value string, err error) {
	if expr == nil || *expr == "" {
		return "", "", nil
	}
	match := equalityRe.FindStringSubmatch(substituteNames(*expr, names))
	if match == nil {
		return "", "", fmt.Errorf("ddbmock: unsupported filter expression %q", *expr)
	}
	value, err = stringValue(values, match[2])
	return match[1], value, err
}

type entry struct {
	sortKey string
	pk      string
	sk      string
	item    Item
}

// entryLess orders the index partition: sort key first, primary key as
// tie break.
func entryLess(a, b entry) bool {
	if a.sortKey != b.sortKey {
		return a.sortKey < b.sortKey
	}
	if a.pk != b.pk {
		return a.pk < b.pk
	}
	return a.sk < b.sk
}

func (m *MemoryClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	if params.KeyConditionExpression == nil {
		return nil, fmt.Errorf("ddbmock: missing key condition")
	}
	cond, err := parseKeyCondition(*params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	sortAttr, ok := sortAttrFor[cond.partAttr]
	if !ok {
		return nil, fmt.Errorf("ddbmock: unknown partition attribute %q", cond.partAttr)
	}

	filterAttr, filterValue, err := parseFilter(params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	// Collect the matching partition, ordered by the index sort key with
	// the primary key as tie break.
	var entries []entry
	for _, item := range m.items {
		part, ok := item[cond.partAttr].(*types.AttributeValueMemberS)
		if !ok || part.Value != cond.partValue {
			continue
		}
		sortAV, ok := item[sortAttr].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if cond.sortAttr != "" && !strings.HasPrefix(sortAV.Value, cond.sortPfx) {
			continue
		}
		pk := item["pk"].(*types.AttributeValueMemberS).Value
		sk := item["sk"].(*types.AttributeValueMemberS).Value
		entries = append(entries, entry{sortKey: sortAV.Value, pk: pk, sk: sk, item: item})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})

	// Resume past the exclusive start key's sort position. The position
	// is used rather than the item itself so the walk continues even
	// when the boundary item was deleted between pages.
	start := 0
	if params.ExclusiveStartKey != nil {
		spk, _ := params.ExclusiveStartKey["pk"].(*types.AttributeValueMemberS)
		ssk, _ := params.ExclusiveStartKey["sk"].(*types.AttributeValueMemberS)
		if spk != nil && ssk != nil {
			boundary := entry{pk: spk.Value, sk: ssk.Value, sortKey: ssk.Value}
			if av, ok := params.ExclusiveStartKey[sortAttr].(*types.AttributeValueMemberS); ok {
				boundary.sortKey = av.Value
			}
			start = sort.Search(len(entries), func(i int) bool {
				return entryLess(boundary, entries[i])
			})
		}
	}
	entries = entries[start:]

	// Limit bounds the scanned window; the filter applies afterwards,
	// matching DynamoDB semantics.
	scanned := entries
	if params.Limit != nil && int(*params.Limit) < len(entries) {
		scanned = entries[:int(*params.Limit)]
	}

	out := &dynamodb.QueryOutput{}
	for _, e := range scanned {
		if filterAttr != "" {
			av, ok := e.item[filterAttr].(*types.AttributeValueMemberS)
			if !ok || av.Value != filterValue {
				continue
			}
		}
		out.Items = append(out.Items, copyItem(e.item))
	}

	if len(scanned) < len(entries) {
		last := scanned[len(scanned)-1]
		out.LastEvaluatedKey = Item{
			"pk":     &types.AttributeValueMemberS{Value: last.pk},
			"sk":     &types.AttributeValueMemberS{Value: last.sk},
			sortAttr: &types.AttributeValueMemberS{Value: last.sortKey},
		}
	}
	return out, nil
}
