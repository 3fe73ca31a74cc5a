package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/grvbrk/vidcatalog_server/internal/models"
)

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoVideoStore implements VideoStore on a DynamoDB table keyed by "id".
type DynamoVideoStore struct {
	client    DynamoAPI
	tableName string
}

var _ VideoStore = (*DynamoVideoStore)(nil)

func NewDynamoVideoStore(client DynamoAPI, tableName string) (*DynamoVideoStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("DynamoDB table name cannot be empty")
	}
	return &DynamoVideoStore{
		client:    client,
		tableName: tableName,
	}, nil
}

func (s *DynamoVideoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrID: &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoVideoStore) PutVideo(ctx context.Context, video *models.Video) error {
	av, err := attributevalue.MarshalMap(video)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("video id %s already exists: %w", video.ID, err)
		}
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

func (s *DynamoVideoStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if result.Item == nil {
		return nil, ErrVideoNotFound
	}

	var video models.Video
	if err := attributevalue.UnmarshalMap(result.Item, &video); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &video, nil
}

func (s *DynamoVideoStore) DeleteVideo(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	return nil
}

// ScanVideos issues exactly one Scan call. DynamoDB applies Limit before the
// filter, so a filtered page can hold fewer items than Limit (or none) while
// still returning a continuation token.
func (s *DynamoVideoStore) ScanVideos(ctx context.Context, params ScanParams) (*ScanPage, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}

	if params.Limit > 0 {
		input.Limit = aws.Int32(int32(params.Limit))
	}

	startKey, err := decodeDynamoToken(params.Token)
	if err != nil {
		return nil, err
	}
	input.ExclusiveStartKey = startKey

	expr, ok, err := buildScanExpression(params)
	if err != nil {
		return nil, err
	}
	if ok {
		input.FilterExpression = expr.Filter()
		input.ProjectionExpression = expr.Projection()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	result, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}

	videos := make([]models.Video, 0, len(result.Items))
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &videos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}

	next, err := encodeDynamoToken(result.LastEvaluatedKey)
	if err != nil {
		return nil, err
	}

	return &ScanPage{Videos: videos, NextToken: next}, nil
}

// buildScanExpression binds the filter field as an expression attribute name,
// so caller supplied field names never reach the expression text.
func buildScanExpression(params ScanParams) (expression.Expression, bool, error) {
	builder := expression.NewBuilder()
	set := false

	if f := params.Filter; f != nil {
		name := expression.Name(f.Field)
		var cond expression.ConditionBuilder
		switch f.Op {
		case OpEquals:
			cond = name.Equal(expression.Value(f.Value))
		case OpContains:
			cond = name.Contains(f.Value)
		default:
			return expression.Expression{}, false, fmt.Errorf("unsupported filter op %d", f.Op)
		}
		builder = builder.WithFilter(cond)
		set = true
	}

	if len(params.Projection) > 0 {
		names := make([]expression.NameBuilder, 0, len(params.Projection))
		for _, p := range params.Projection {
			names = append(names, expression.Name(p))
		}
		builder = builder.WithProjection(expression.NamesList(names[0], names[1:]...))
		set = true
	}

	if !set {
		return expression.Expression{}, false, nil
	}

	expr, err := builder.Build()
	if err != nil {
		return expression.Expression{}, false, fmt.Errorf("failed to build scan expression: %w", err)
	}
	return expr, true, nil
}

func encodeDynamoToken(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	var plain map[string]string
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", fmt.Errorf("failed to encode continuation token: %w", err)
	}
	b, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encode continuation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeDynamoToken(token string) (map[string]types.AttributeValue, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var plain map[string]string
	if err := json.Unmarshal(b, &plain); err != nil || len(plain) == 0 {
		return nil, ErrInvalidToken
	}
	key, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return key, nil
}
