package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const dynamoKey = "video_url"

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps records in a DynamoDB table keyed by video_url.
type DynamoStore struct {
	client   DynamoAPI
	table    string
	pageSize int
}

func NewDynamoStore(client DynamoAPI, table string, pageSize int) *DynamoStore {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &DynamoStore{client: client, table: table, pageSize: pageSize}
}

// ConnectDynamo builds a client from the default AWS credential chain.
func ConnectDynamo(ctx context.Context, region, table string, pageSize int) (*DynamoStore, error) {
	if table == "" {
		return nil, errors.New("ledger dynamodb: table name is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ledger dynamodb: load aws config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table, pageSize), nil
}

func dynamoKeyOf(videoURL string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{dynamoKey: &types.AttributeValueMemberS{Value: videoURL}}
}

func (s *DynamoStore) Get(ctx context.Context, videoURL string) (*VideoRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       dynamoKeyOf(videoURL),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger dynamodb: get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	r, err := decodeDynamo(videoURL, out.Item)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *DynamoStore) Upsert(ctx context.Context, videoURL string, fields Fields) error {
	if err := checkUpsert(videoURL, fields); err != nil {
		return err
	}
	plain, err := fields.normalize()
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return nil
	}
	expr, err := dynamoUpdate(plain)
	if err != nil {
		return fmt.Errorf("ledger dynamodb: build update: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       dynamoKeyOf(videoURL),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("ledger dynamodb: update: %w", err)
	}
	return nil
}

// dynamoUpdate builds a SET expression; the builder substitutes every name,
// which keeps reserved words like "duration" out of the expression text.
func dynamoUpdate(plain map[string]any) (expression.Expression, error) {
	var upd expression.UpdateBuilder
	for i, k := range Fields(plain).Names() {
		if i == 0 {
			upd = expression.Set(expression.Name(k), expression.Value(plain[k]))
			continue
		}
		upd = upd.Set(expression.Name(k), expression.Value(plain[k]))
	}
	return expression.NewBuilder().WithUpdate(upd).Build()
}

func (s *DynamoStore) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	in := &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Limit:     aws.Int32(int32(s.pageSize)),
	}
	if cond, ok := dynamoCondition(filter); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return Page{}, fmt.Errorf("ledger dynamodb: build filter: %w", err)
		}
		in.FilterExpression = expr.Filter()
		in.ExpressionAttributeNames = expr.Names()
		in.ExpressionAttributeValues = expr.Values()
	}
	if cursor != "" {
		in.ExclusiveStartKey = dynamoKeyOf(cursor)
	}

	out, err := s.client.Scan(ctx, in)
	if err != nil {
		return Page{}, fmt.Errorf("ledger dynamodb: scan: %w", err)
	}
	var page Page
	for _, item := range out.Items {
		key, ok := item[dynamoKey].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		r, err := decodeDynamo(key.Value, item)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, r)
	}
	if last, ok := out.LastEvaluatedKey[dynamoKey].(*types.AttributeValueMemberS); ok {
		page.Next = last.Value
	}
	return page, nil
}

func dynamoCondition(filter Filter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if filter.EventYear != "" {
		conds = append(conds, expression.Name(FieldEventYear).Equal(expression.Value(filter.EventYear)))
	}
	if filter.WithoutEnrichment {
		conds = append(conds, expression.AttributeNotExists(expression.Name(FieldCustomerNames)))
	}
	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return expression.And(conds[0], conds[1], conds[2:]...), true
	}
}

func (s *DynamoStore) Close() error { return nil }

func decodeDynamo(videoURL string, item map[string]types.AttributeValue) (VideoRecord, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return VideoRecord{}, fmt.Errorf("ledger dynamodb: decode %s: %w", videoURL, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return VideoRecord{}, fmt.Errorf("ledger dynamodb: decode %s: %w", videoURL, err)
	}
	return decodeRecord(videoURL, raw)
}
