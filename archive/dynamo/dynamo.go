package dynamo

import (
	"context"
	"fmt"
	"log"
	"slices"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zlnvch/duo/archive"
	"github.com/zlnvch/duo/models"
)

// DynamoArchive stores each message as one item: PK "HISTORY#{pairId}",
// SK the message id.
type DynamoArchive struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoArchive(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoArchive, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(ctx, client)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(tables, tableName) {
		return nil, fmt.Errorf("table '%s' not found in dynamodb", tableName)
	}

	return &DynamoArchive{client: client, tableName: tableName}, nil
}

func (a *DynamoArchive) WriteMessages(ctx context.Context, messages []models.Message) ([]models.Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > archive.MaxBatchSize {
		return messages, fmt.Errorf("batch of %d exceeds %d", len(messages), archive.MaxBatchSize)
	}

	requests := make([]types.WriteRequest, 0, len(messages))
	for _, m := range messages {
		item, err := attributevalue.MarshalMap(messageToDynamo(m))
		if err != nil {
			return messages, fmt.Errorf("marshal message %s: %w", m.Id, err)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	failed, err := writeBatchRequests[dynamoMessage](a, ctx, requests)
	if len(failed) == 0 {
		return nil, err
	}

	unprocessed := make([]models.Message, 0, len(failed))
	for _, dm := range failed {
		m, convErr := messageFromDynamo(dm)
		if convErr != nil {
			log.Printf("Dropping unprocessed archive item %s: %v", dm.SK, convErr)
			continue
		}
		unprocessed = append(unprocessed, m)
	}
	return unprocessed, err
}

func (a *DynamoArchive) GetMessage(ctx context.Context, pairId string, messageId string) (models.Message, error) {
	dm, err := getItem[dynamoMessage](a, ctx, historyPK(pairId), messageId)
	if err != nil {
		return models.Message{}, err
	}
	return messageFromDynamo(dm)
}

func (a *DynamoArchive) DeleteMessage(ctx context.Context, pairId string, messageId string) error {
	return deleteItemWithCondition(a, ctx, historyPK(pairId), messageId, "PairId", pairId)
}

func (a *DynamoArchive) History(ctx context.Context, pairId string, limit int32) ([]models.Message, error) {
	items, err := queryAllByPK[dynamoMessage](a, ctx, historyPK(pairId), false, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(items))
	for _, dm := range items {
		m, err := messageFromDynamo(dm)
		if err != nil {
			log.Printf("Skipping archived message %s: %v", dm.SK, err)
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}
