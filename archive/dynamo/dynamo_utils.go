package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zlnvch/duo/archive"
)

var errConditionFailed = errors.New("condition not met")

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	if devMode {
		// Dummy credentials for DynamoDB Local
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}

		return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(dynamodbEndpoint)
		}), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

func getTables(ctx context.Context, client *dynamodb.Client) ([]string, error) {
	output, err := client.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, err
	}

	return output.TableNames, nil
}

// getItem retrieves an item of type T by PK and SK
func getItem[T any](a *DynamoArchive, ctx context.Context, pk string, sk string) (T, error) {
	var zero T

	resp, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return zero, fmt.Errorf("GetItem failed: %w", err)
	}
	if resp.Item == nil {
		return zero, archive.ErrItemNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return item, nil
}

// queryAllByPK returns items of type T with the given PK ordered by SK. A
// limit of zero returns every item.
func queryAllByPK[T any](a *DynamoArchive, ctx context.Context, pk string, scanIndexForward bool, limit int32) ([]T, error) {
	var results []T

	input := &dynamodb.QueryInput{
		TableName:              aws.String(a.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(scanIndexForward),
	}

	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	// Limit applies per page, so it is also enforced across pages
	paginator := dynamodb.NewQueryPaginator(a.client, input)

	for paginator.HasMorePages() {
		if limit > 0 && len(results) >= int(limit) {
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}

		results = append(results, pageItems...)
	}

	if limit > 0 && len(results) > int(limit) {
		results = results[:limit]
	}

	return results, nil
}

// writeBatchRequests sends Put or Delete requests, retrying unprocessed ones
// with backoff. Returns what is still unprocessed as []T.
func writeBatchRequests[T any](a *DynamoArchive, ctx context.Context, requests []types.WriteRequest) ([]T, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	backoff := 50 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return unmarshalUnprocessed[T](requests), ctx.Err()
		default:
		}

		resp, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				a.tableName: requests,
			},
		})
		if err != nil {
			return unmarshalUnprocessed[T](requests), fmt.Errorf("BatchWriteItem failed: %w", err)
		}

		unprocessed := resp.UnprocessedItems[a.tableName]
		if len(unprocessed) == 0 {
			return nil, nil
		}

		requests = unprocessed

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmarshalUnprocessed[T](requests), ctx.Err()
		case <-timer.C:
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// unmarshalUnprocessed converts WriteRequests back to []T
func unmarshalUnprocessed[T any](reqs []types.WriteRequest) []T {
	failed := make([]T, 0, len(reqs))
	for _, wr := range reqs {
		var av map[string]types.AttributeValue
		switch {
		case wr.PutRequest != nil:
			av = wr.PutRequest.Item
		case wr.DeleteRequest != nil:
			av = wr.DeleteRequest.Key
		default:
			continue
		}
		var item T
		if err := attributevalue.UnmarshalMap(av, &item); err == nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// deleteItemWithCondition deletes an item by PK and SK if conditionField
// equals expectedValue. A missing item gives archive.ErrItemNotFound.
func deleteItemWithCondition(a *DynamoArchive, ctx context.Context, pk string, sk string, conditionField string, expectedValue string) error {
	key := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}

	_, err := a.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(a.tableName),
		Key:                 key,
		ConditionExpression: aws.String("#f = :val"),
		ExpressionAttributeNames: map[string]string{
			"#f": conditionField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":val": &types.AttributeValueMemberS{Value: expectedValue},
		},
	})
	if err == nil {
		return nil
	}

	var cce *types.ConditionalCheckFailedException
	if !errors.As(err, &cce) {
		return fmt.Errorf("delete failed: %w", err)
	}

	// Either the item is missing or the condition did not hold
	getResp, getErr := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(a.tableName),
		Key:       key,
	})
	if getErr != nil {
		return fmt.Errorf("delete failed, and GetItem check also failed: %w", getErr)
	}
	if getResp.Item == nil {
		return archive.ErrItemNotFound
	}
	return errConditionFailed
}
