package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrConcurrentCommit is returned when another writer committed a
// codebook version first. The caller can reload and retry.
var ErrConcurrentCommit = errors.New("s3: concurrent codebook commit detected")

// DDBClient is the subset of the DynamoDB API the commit log uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// CommitLog coordinates atomic codebook replacement across concurrent
// writers. S3 holds the artifact bytes under versioned keys; DynamoDB
// provides the compare-and-swap that S3 lacks, so the pointer to the
// current codebook moves exactly once per version.
//
// Table schema:
//   - Partition key: base_uri (string), the store's S3 prefix
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name vecquant-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitLog struct {
	client    DDBClient
	tableName string
	baseURI   string
}

// NewCommitLog creates a commit log. baseURI identifies the artifact
// store, e.g. "s3://bucket/prefix".
func NewCommitLog(client DDBClient, tableName, baseURI string) *CommitLog {
	return &CommitLog{
		client:    client,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Current returns the latest committed version and its artifact name.
// Version 0 with an empty name means nothing has been committed yet.
func (c *CommitLog) Current(ctx context.Context) (uint64, string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: c.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commit log: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute in commit log")
	}
	nameAttr, ok := item["artifact_name"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid artifact_name attribute in commit log")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse commit version: %w", err)
	}
	return version, nameAttr.Value, nil
}

// Commit points the log at artifactName as version prev+1. The
// conditional write guarantees exactly one writer wins each version;
// losers get ErrConcurrentCommit with the artifact still uploaded but
// unreferenced.
func (c *CommitLog) Commit(ctx context.Context, artifactName string) (uint64, error) {
	current, _, err := c.Current(ctx)
	if err != nil {
		return 0, err
	}
	next := current + 1

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: c.baseURI},
			"version":       &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"artifact_name": &types.AttributeValueMemberS{Value: artifactName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentCommit
		}
		return 0, fmt.Errorf("commit codebook version: %w", err)
	}
	return next, nil
}

// Retire deletes the commit entry for version, used when pruning old
// codebook artifacts.
func (c *CommitLog) Retire(ctx context.Context, version uint64) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: c.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
		},
	})
	return err
}
