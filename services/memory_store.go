package services

import (
	"context"
	"sort"
	"sync"

	"anniversary_server/apperrors"
	"anniversary_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryStore is a KeyPathStore held in process. Items are kept in the same
// attribute-value form DynamoStore writes, so both backends share tags,
// conditions and encoding.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string]map[string]types.AttributeValue
	feed  ChangeNotifier
}

func NewMemoryStore(feed ChangeNotifier) *MemoryStore {
	if feed == nil {
		feed = NewLocalChangeFeed()
	}
	return &MemoryStore{
		items: make(map[string]map[string]map[string]types.AttributeValue),
		feed:  feed,
	}
}

func (s *MemoryStore) Put(ctx context.Context, path string, value any) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(value)
	if err != nil {
		return apperrors.Validation("put", "marshal %s: %v", path, err)
	}
	item[KeyAttribute] = &types.AttributeValueMemberS{Value: id}

	s.mu.Lock()
	if s.items[collection] == nil {
		s.items[collection] = make(map[string]map[string]types.AttributeValue)
	}
	s.items[collection][id] = item
	s.mu.Unlock()

	s.feed.Publish(ctx, path)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, path string, out any) (bool, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	item, ok := s.items[collection][id]
	if ok {
		item = utils.CopyItem(item)
	}
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return false, apperrors.Validation("get", "unmarshal %s: %v", path, err)
	}
	return true, nil
}

func (s *MemoryStore) Query(_ context.Context, collection, field string, equals any, out any) error {
	want, err := attributevalue.Marshal(equals)
	if err != nil {
		return apperrors.Validation("query", "marshal %s value: %v", field, err)
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.items[collection]))
	for id, item := range s.items[collection] {
		if got, ok := item[field]; ok && utils.AttributeEqual(got, want) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	matches := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		matches = append(matches, utils.CopyItem(s.items[collection][id]))
	}
	s.mu.RUnlock()

	if err := attributevalue.UnmarshalListOfMaps(matches, out); err != nil {
		return apperrors.Validation("query", "unmarshal %s: %v", collection, err)
	}
	return nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, path string, fields map[string]any, opts ...UpdateOption) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return apperrors.Validation("update", "no fields to update for %s", path)
	}
	o := collectOptions(opts)

	set, err := marshalFields(fields)
	if err != nil {
		return err
	}
	defaults, err := marshalFields(o.Defaults)
	if err != nil {
		return err
	}
	conditions, err := marshalConditions(o.Conditions)
	if err != nil {
		return err
	}

	s.mu.Lock()
	current, exists := s.items[collection][id]
	if !exists && o.MustExist {
		s.mu.Unlock()
		return apperrors.NotFound("update", "%s", path)
	}
	for _, c := range conditions {
		if !c.holds(current) {
			s.mu.Unlock()
			return ErrConditionFailed
		}
	}

	next := utils.CopyItem(current)
	for k, v := range defaults {
		if _, ok := next[k]; !ok {
			next[k] = v
		}
	}
	for k, v := range set {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	next[KeyAttribute] = &types.AttributeValueMemberS{Value: id}

	if s.items[collection] == nil {
		s.items[collection] = make(map[string]map[string]types.AttributeValue)
	}
	s.items[collection][id] = next
	s.mu.Unlock()

	s.feed.Publish(ctx, path)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, existed := s.items[collection][id]
	delete(s.items[collection], id)
	s.mu.Unlock()

	if existed {
		s.feed.Publish(ctx, path)
	}
	return nil
}

func (s *MemoryStore) Subscribe(prefix string) (<-chan struct{}, func()) {
	return s.feed.Subscribe(prefix)
}

// marshalFields encodes every value; nil values stay nil and mean "remove".
func marshalFields(fields map[string]any) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(fields))
	for k, v := range fields {
		if v == nil {
			out[k] = nil
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, apperrors.Validation("update", "marshal field %s: %v", k, err)
		}
		out[k] = av
	}
	return out, nil
}

type encodedCondition struct {
	field        string
	oneOf        []types.AttributeValue
	allowMissing bool
}

func marshalConditions(conditions []Condition) ([]encodedCondition, error) {
	out := make([]encodedCondition, 0, len(conditions))
	for _, c := range conditions {
		enc := encodedCondition{field: c.Field, allowMissing: c.AllowMissing}
		for _, v := range c.OneOf {
			av, err := attributevalue.Marshal(v)
			if err != nil {
				return nil, apperrors.Validation("update", "marshal condition %s: %v", c.Field, err)
			}
			enc.oneOf = append(enc.oneOf, av)
		}
		out = append(out, enc)
	}
	return out, nil
}

func (c encodedCondition) holds(item map[string]types.AttributeValue) bool {
	got, ok := item[c.field]
	if !ok {
		return c.allowMissing
	}
	for _, want := range c.oneOf {
		if utils.AttributeEqual(got, want) {
			return true
		}
	}
	return false
}
