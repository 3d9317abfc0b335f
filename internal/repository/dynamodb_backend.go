package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefixStore = "STORE#"
	skBlob        = "BLOB#"

	// maxBlobBytes keeps the item under DynamoDB's 400 KB item limit with
	// room for the key and metadata attributes.
	maxBlobBytes = 400*1024 - 1024
)

var (
	// ErrConflict is returned by Write when another writer replaced the blob
	// after this backend last read it.
	ErrConflict = errors.New("repository: store changed since last read")
	// ErrBlobTooLarge is returned by Write when the blob cannot fit in one item.
	ErrBlobTooLarge = errors.New("repository: session history exceeds the DynamoDB item size limit")
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoBackend.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoBackend keeps the blob in one DynamoDB item addressed by a fixed key.
// PutItem replaces the item as a whole, so readers never see a partial blob.
// Each write bumps a version attribute and is conditioned on the version
// seen by the last Read, so a concurrent writer is reported, not overwritten.
type DynamoBackend struct {
	api       dynamodbAPI
	tableName string
	key       string
	now       func() time.Time

	mu      sync.Mutex
	version int64
}

// NewDynamoBackend creates a backend storing its blob under key in tableName.
func NewDynamoBackend(api dynamodbAPI, tableName, key string) (*DynamoBackend, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("repository: store key must not be empty")
	}
	return &DynamoBackend{api: api, tableName: tableName, key: key, now: time.Now}, nil
}

// storePK returns the partition key for the store blob.
func storePK(key string) string {
	return pkPrefixStore + key
}

func (b *DynamoBackend) itemKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: storePK(b.key)},
		"SK": &types.AttributeValueMemberS{Value: skBlob},
	}
}

func (b *DynamoBackend) Read(ctx context.Context) ([]byte, error) {
	out, err := b.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.tableName),
		Key:            b.itemKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Read get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		b.setVersion(0)
		return nil, nil
	}
	data, err := strAttr(out.Item, "data")
	if err != nil {
		return nil, fmt.Errorf("repository: Read decode data: %w", err)
	}
	version, err := numAttr(out.Item, "version")
	if err != nil {
		return nil, fmt.Errorf("repository: Read decode version: %w", err)
	}
	b.setVersion(version)
	return []byte(data), nil
}

func (b *DynamoBackend) setVersion(v int64) {
	b.mu.Lock()
	b.version = v
	b.mu.Unlock()
}

func (b *DynamoBackend) Write(ctx context.Context, data []byte) error {
	if len(data) > maxBlobBytes {
		return fmt.Errorf("repository: Write %d bytes: %w", len(data), ErrBlobTooLarge)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.version + 1

	item := b.itemKey()
	item["data"] = &types.AttributeValueMemberS{Value: string(data)}
	item["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: b.now().UTC().Format(time.RFC3339Nano)}

	in := &dynamodb.PutItemInput{
		TableName:                aws.String(b.tableName),
		Item:                     item,
		ExpressionAttributeNames: map[string]string{"#v": "version"},
	}
	if b.version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(#v)")
	} else {
		in.ConditionExpression = aws.String("#v = :v")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(b.version, 10)},
		}
	}

	if _, err := b.api.PutItem(ctx, in); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("repository: Write: %w", ErrConflict)
		}
		return fmt.Errorf("repository: Write: %w", err)
	}
	b.version = next
	return nil
}

// numAttr reads an optional number attribute; a missing one is zero.
func numAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
