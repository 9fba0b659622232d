package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"anniversary_server/apperrors"
	"anniversary_server/logger"
	"anniversary_server/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client the store calls.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore is the production KeyPathStore. Each collection is a table
// named TablePrefix+collection with partition key "id". Writes made by this
// process are announced on Feed; other processes reach it through a
// RedisChangeFeed.
type DynamoStore struct {
	Client      DynamoAPI
	TablePrefix string
	// Indexes maps "collection.field" to a GSI whose partition key is field.
	// Queries without an index fall back to a filtered scan.
	Indexes map[string]string
	Feed    ChangeNotifier
}

// DefaultIndexes are the GSIs the lookups in this service expect.
func DefaultIndexes() map[string]string {
	return map[string]string{
		"relationships.coupleCode":       "coupleCode-index",
		"wishes.relationshipId":          "relationshipId-index",
		"delivery_status.relationshipId": "relationshipId-index",
	}
}

// InitializeDynamoDBClient initializes the DynamoDB client. A non-empty
// endpoint points it at DynamoDB Local or another compatible endpoint.
func InitializeDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func NewDynamoStore(client DynamoAPI, tablePrefix string, feed ChangeNotifier) *DynamoStore {
	if feed == nil {
		feed = NewLocalChangeFeed()
	}
	return &DynamoStore{
		Client:      client,
		TablePrefix: tablePrefix,
		Indexes:     DefaultIndexes(),
		Feed:        feed,
	}
}

func (ds *DynamoStore) table(collection string) string {
	return ds.TablePrefix + collection
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		KeyAttribute: &types.AttributeValueMemberS{Value: id},
	}
}

func (ds *DynamoStore) Put(ctx context.Context, path string, value any) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(value)
	if err != nil {
		return apperrors.Validation("put", "marshal %s: %v", path, err)
	}
	item[KeyAttribute] = &types.AttributeValueMemberS{Value: id}

	_, err = ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ds.table(collection)),
		Item:      item,
	})
	if err != nil {
		return apperrors.Unavailable("put "+path, err)
	}
	ds.Feed.Publish(ctx, path)
	return nil
}

func (ds *DynamoStore) Get(ctx context.Context, path string, out any) (bool, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return false, err
	}
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.table(collection)),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, apperrors.Unavailable("get "+path, err)
	}
	if output.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(output.Item, out); err != nil {
		return false, apperrors.Validation("get", "unmarshal %s: %v", path, err)
	}
	return true, nil
}

func (ds *DynamoStore) Query(ctx context.Context, collection, field string, equals any, out any) error {
	value, err := attributevalue.Marshal(equals)
	if err != nil {
		return apperrors.Validation("query", "marshal %s value: %v", field, err)
	}
	names := map[string]string{"#f": field}
	values := map[string]types.AttributeValue{":v": value}

	var items []map[string]types.AttributeValue
	if index, ok := ds.Indexes[collection+"."+field]; ok {
		items, err = ds.queryIndex(ctx, collection, index, names, values)
	} else {
		items, err = ds.scanFiltered(ctx, collection, names, values)
	}
	if err != nil {
		return apperrors.Unavailable("query "+collection, err)
	}

	sort.Slice(items, func(i, j int) bool {
		return utils.ExtractString(items[i], KeyAttribute) < utils.ExtractString(items[j], KeyAttribute)
	})
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return apperrors.Validation("query", "unmarshal %s: %v", collection, err)
	}
	return nil
}

// queryIndex reads every page of a GSI query.
func (ds *DynamoStore) queryIndex(ctx context.Context, collection, index string, names map[string]string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewQueryPaginator(ds.Client, &dynamodb.QueryInput{
		TableName:                 aws.String(ds.table(collection)),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#f = :v"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query GSI '%s': %w", index, err)
		}
		items = append(items, page.Items...)
	}
	logger.Get().Debug().Str("table", ds.table(collection)).Str("index", index).Int("items", len(items)).Msg("query")
	return items, nil
}

// scanFiltered reads every page of a filtered, strongly consistent scan.
func (ds *DynamoStore) scanFiltered(ctx context.Context, collection string, names map[string]string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewScanPaginator(ds.Client, &dynamodb.ScanInput{
		TableName:                 aws.String(ds.table(collection)),
		FilterExpression:          aws.String("#f = :v"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	})
	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table '%s': %w", ds.table(collection), err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func (ds *DynamoStore) UpdateFields(ctx context.Context, path string, fields map[string]any, opts ...UpdateOption) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	o := collectOptions(opts)
	expr, err := buildUpdateExpression(fields, o)
	if err != nil {
		return err
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(ds.table(collection)),
		Key:                       itemKey(id),
		UpdateExpression:          aws.String(expr.Update),
		ExpressionAttributeNames:  expr.Names,
		ExpressionAttributeValues: expr.Values,
	}
	if expr.Condition != "" {
		input.ConditionExpression = aws.String(expr.Condition)
		input.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
	}

	if _, err := ds.Client.UpdateItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if o.MustExist && ccf.Item == nil {
				return apperrors.NotFound("update", "%s", path)
			}
			return ErrConditionFailed
		}
		return apperrors.Unavailable("update "+path, err)
	}
	ds.Feed.Publish(ctx, path)
	return nil
}

func (ds *DynamoStore) Delete(ctx context.Context, path string) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	_, err = ds.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(ds.table(collection)),
		Key:       itemKey(id),
	})
	if err != nil {
		return apperrors.Unavailable("delete "+path, err)
	}
	ds.Feed.Publish(ctx, path)
	return nil
}

func (ds *DynamoStore) Subscribe(prefix string) (<-chan struct{}, func()) {
	return ds.Feed.Subscribe(prefix)
}

type updateExpression struct {
	Update    string
	Condition string
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

// buildUpdateExpression renders fields, defaults and guards into DynamoDB
// expression syntax. Placeholders are assigned in sorted field order so the
// output is deterministic.
func buildUpdateExpression(fields map[string]any, o UpdateOptions) (updateExpression, error) {
	if len(fields) == 0 {
		return updateExpression{}, apperrors.Validation("update", "no fields to update")
	}
	set, err := marshalFields(fields)
	if err != nil {
		return updateExpression{}, err
	}
	defaults, err := marshalFields(o.Defaults)
	if err != nil {
		return updateExpression{}, err
	}
	conditions, err := marshalConditions(o.Conditions)
	if err != nil {
		return updateExpression{}, err
	}

	expr := updateExpression{
		Names:  map[string]string{},
		Values: map[string]types.AttributeValue{},
	}
	var setClauses, removeClauses []string

	for i, name := range sortedKeys(set) {
		n := fmt.Sprintf("#f%d", i)
		expr.Names[n] = name
		if set[name] == nil {
			removeClauses = append(removeClauses, n)
			continue
		}
		v := fmt.Sprintf(":f%d", i)
		expr.Values[v] = set[name]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", n, v))
	}
	for i, name := range sortedKeys(defaults) {
		if _, overridden := set[name]; overridden || defaults[name] == nil {
			continue
		}
		n, v := fmt.Sprintf("#d%d", i), fmt.Sprintf(":d%d", i)
		expr.Names[n] = name
		expr.Values[v] = defaults[name]
		setClauses = append(setClauses, fmt.Sprintf("%s = if_not_exists(%s, %s)", n, n, v))
	}

	var parts []string
	if len(setClauses) > 0 {
		parts = append(parts, "SET "+strings.Join(setClauses, ", "))
	}
	if len(removeClauses) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(removeClauses, ", "))
	}
	expr.Update = strings.Join(parts, " ")

	var guards []string
	if o.MustExist {
		expr.Names["#pk"] = KeyAttribute
		guards = append(guards, "attribute_exists(#pk)")
	}
	for i, c := range conditions {
		n := fmt.Sprintf("#c%d", i)
		expr.Names[n] = c.field
		var alts []string
		if c.allowMissing {
			alts = append(alts, fmt.Sprintf("attribute_not_exists(%s)", n))
		}
		for j, av := range c.oneOf {
			v := fmt.Sprintf(":c%dv%d", i, j)
			expr.Values[v] = av
			alts = append(alts, fmt.Sprintf("%s = %s", n, v))
		}
		if len(alts) == 0 {
			return updateExpression{}, apperrors.Validation("update", "condition on %s has no alternatives", c.field)
		}
		guards = append(guards, "("+strings.Join(alts, " OR ")+")")
	}
	expr.Condition = strings.Join(guards, " AND ")

	if len(expr.Values) == 0 {
		expr.Values = nil
	}
	return expr, nil
}

func sortedKeys(m map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
