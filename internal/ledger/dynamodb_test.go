package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	updates []*dynamodb.UpdateItemInput
	scans   []*dynamodb.ScanInput
	pages   []*dynamodb.ScanOutput
	item    map[string]types.AttributeValue
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, in)
	out := f.pages[0]
	f.pages = f.pages[1:]
	return out, nil
}

func sItem(url, year string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"video_url":  &types.AttributeValueMemberS{Value: url},
		"event_year": &types.AttributeValueMemberS{Value: year},
		"view_count": &types.AttributeValueMemberN{Value: "17"},
	}
}

func TestDynamoUpsertAliasesReservedWords(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "youtube_video_data", 10)

	require.NoError(t, s.Upsert(context.Background(), "u", Fields{FieldDuration: "1H 2M", FieldTitle: "T"}))
	require.Len(t, fake.updates, 1)
	in := fake.updates[0]
	assert.Equal(t, "youtube_video_data", *in.TableName)
	assert.NotContains(t, *in.UpdateExpression, "duration")
	assert.True(t, strings.HasPrefix(*in.UpdateExpression, "SET "))

	var aliased []string
	for _, v := range in.ExpressionAttributeNames {
		aliased = append(aliased, v)
	}
	assert.ElementsMatch(t, []string{"duration", "title"}, aliased)
	assert.Len(t, in.ExpressionAttributeValues, 2)
}

func TestDynamoUpdateIsDeterministic(t *testing.T) {
	plain, err := Fields{FieldDuration: "1H", FieldTitle: "T", FieldCustomerNames: []string{"Acme"}}.normalize()
	require.NoError(t, err)

	first, err := dynamoUpdate(plain)
	require.NoError(t, err)
	second, err := dynamoUpdate(plain)
	require.NoError(t, err)

	assert.Equal(t, *first.Update(), *second.Update())
	assert.Equal(t, first.Names(), second.Names())
	assert.Equal(t, first.Values(), second.Values())
}

func TestDynamoUpsertRejectsUnknownField(t *testing.T) {
	fake := &fakeDynamo{}
	err := NewDynamoStore(fake, "t", 10).Upsert(context.Background(), "u", Fields{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Empty(t, fake.updates)
}

func TestDynamoScanFollowsLastEvaluatedKey(t *testing.T) {
	fake := &fakeDynamo{pages: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{sItem("a", "2024"), sItem("b", "2024")},
			LastEvaluatedKey: map[string]types.AttributeValue{"video_url": &types.AttributeValueMemberS{Value: "b"}},
		},
		{Items: []map[string]types.AttributeValue{sItem("c", "2024")}},
	}}
	s := NewDynamoStore(fake, "t", 2)

	var got []VideoRecord
	require.NoError(t, ScanAll(context.Background(), s, Filter{EventYear: "2024", WithoutEnrichment: true}, 0, func(r VideoRecord) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 3)
	assert.Equal(t, int64(17), got[0].ViewCount)
	assert.Equal(t, "c", got[2].VideoURL)

	require.Len(t, fake.scans, 2)
	assert.Nil(t, fake.scans[0].ExclusiveStartKey)
	start := fake.scans[1].ExclusiveStartKey["video_url"].(*types.AttributeValueMemberS)
	assert.Equal(t, "b", start.Value)
	require.NotNil(t, fake.scans[0].FilterExpression)
	assert.Contains(t, *fake.scans[0].FilterExpression, "attribute_not_exists")
}

func TestDynamoGet(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "t", 10)
	r, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Nil(t, r)

	fake.item = sItem("a", "2024")
	r, err = s.Get(context.Background(), "a")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "2024", r.EventYear)
	assert.False(t, r.HasEnrichment())
}
