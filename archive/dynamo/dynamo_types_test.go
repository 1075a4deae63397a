package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/duo/models"
)

func TestMessageMapping(t *testing.T) {
	m := models.Message{
		Id:         "0190a0b0-0000-7000-8000-000000000001",
		PairId:     "alice_bob",
		AuthorId:   "alice",
		AuthorName: "Alice",
		Content:    `[{"path":"M0 0","color":"#000000","width":2}]`,
		Kind:       models.KindDrawing,
		Timestamp:  1700000000000,
	}

	dm := messageToDynamo(m)
	assert.Equal(t, "HISTORY#alice_bob", dm.PK)
	assert.Equal(t, m.Id, dm.SK)
	assert.Equal(t, "drawing", dm.Kind)

	back, err := messageFromDynamo(dm)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	dm.Kind = "video"
	_, err = messageFromDynamo(dm)
	assert.Error(t, err)
}

func TestMessageFromDynamo_PairIdFromKey(t *testing.T) {
	back, err := messageFromDynamo(dynamoMessage{PK: "HISTORY#a_b", SK: "m1", Kind: "text"})
	require.NoError(t, err)
	assert.Equal(t, "a_b", back.PairId)
}

func TestUnmarshalUnprocessed(t *testing.T) {
	item, err := attributevalue.MarshalMap(messageToDynamo(models.Message{Id: "m1", PairId: "a_b", AuthorId: "a", Kind: models.KindText}))
	require.NoError(t, err)

	failed := unmarshalUnprocessed[dynamoMessage]([]types.WriteRequest{
		{PutRequest: &types.PutRequest{Item: item}},
		{},
	})
	require.Len(t, failed, 1)
	assert.Equal(t, "m1", failed[0].SK)
}
