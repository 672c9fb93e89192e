// Package dynamo stores coffee shops in a DynamoDB table keyed by shop id.
package dynamo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mspro-labs/coffee-finder/internal/models"
)

// API is the subset of the DynamoDB client used by ShopTable.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// ShopTable implements the shop table on DynamoDB. The partition key is the
// shop id, so the storage record id equals the shop id.
type ShopTable struct {
	client    API
	tableName string
}

// NewShopTable creates a table backed by client.
func NewShopTable(client API, tableName string) *ShopTable {
	return &ShopTable{client: client, tableName: tableName}
}

// NewFromEnv builds a DynamoDB client from the default AWS credential chain.
func NewFromEnv(ctx context.Context, tableName string) (*ShopTable, error) {
	if tableName == "" {
		return nil, fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb backend")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewShopTable(dynamodb.NewFromConfig(cfg), tableName), nil
}

func key(id string) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		"id": &dynamodbtypes.AttributeValueMemberS{Value: id},
	}
}

func decode(item map[string]dynamodbtypes.AttributeValue) (models.PersistedShop, error) {
	var shop models.PersistedShop
	if err := attributevalue.UnmarshalMap(item, &shop); err != nil {
		return models.PersistedShop{}, fmt.Errorf("failed to unmarshal coffee store: %w", err)
	}
	shop.RecordID = shop.ID
	return shop, nil
}

// FindByID returns the shop stored under id, or an empty slice.
func (t *ShopTable) FindByID(ctx context.Context, id string) ([]models.PersistedShop, error) {
	result, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get coffee store: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}
	shop, err := decode(result.Item)
	if err != nil {
		return nil, err
	}
	return []models.PersistedShop{shop}, nil
}

// Create puts a new item. It refuses to overwrite an existing id.
func (t *ShopTable) Create(ctx context.Context, shop models.PersistedShop) ([]models.PersistedShop, error) {
	item, err := attributevalue.MarshalMap(shop)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal coffee store: %w", err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save coffee store to DynamoDB: %w", err)
	}
	shop.RecordID = shop.ID
	return []models.PersistedShop{shop}, nil
}

// UpdateVoting sets the voting attribute and returns the updated item.
func (t *ShopTable) UpdateVoting(ctx context.Context, recordID string, voting int) ([]models.PersistedShop, error) {
	return t.update(ctx, recordID, "SET voting = :v", &dynamodbtypes.AttributeValueMemberN{Value: strconv.Itoa(voting)})
}

// IncrementVoting adds one to the voting attribute server side, so
// concurrent writers never overwrite each other's votes.
func (t *ShopTable) IncrementVoting(ctx context.Context, recordID string) ([]models.PersistedShop, error) {
	return t.update(ctx, recordID, "ADD voting :v", &dynamodbtypes.AttributeValueMemberN{Value: "1"})
}

func (t *ShopTable) update(ctx context.Context, recordID, expr string, v dynamodbtypes.AttributeValue) ([]models.PersistedShop, error) {
	result, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.tableName),
		Key:                       key(recordID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{":v": v},
		ReturnValues:              dynamodbtypes.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update coffee store: %w", err)
	}
	shop, err := decode(result.Attributes)
	if err != nil {
		return nil, err
	}
	return []models.PersistedShop{shop}, nil
}
