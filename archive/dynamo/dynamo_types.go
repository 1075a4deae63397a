package dynamo

import (
	"strings"

	"github.com/zlnvch/duo/models"
)

const historyPrefix = "HISTORY#"

type dynamoMessage struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	PairId     string `dynamodbav:"PairId"`
	AuthorId   string `dynamodbav:"AuthorId"`
	AuthorName string `dynamodbav:"AuthorName"`
	Content    string `dynamodbav:"Content"`
	Kind       string `dynamodbav:"Kind"`
	Timestamp  int64  `dynamodbav:"Timestamp"`
	Read       bool   `dynamodbav:"Read"`
}

func historyPK(pairId string) string {
	return historyPrefix + pairId
}

// Map domain Message -> Dynamo. Message ids are time ordered so the sort key
// orders a pair's history by send time.
func messageToDynamo(m models.Message) dynamoMessage {
	return dynamoMessage{
		PK:         historyPK(m.PairId),
		SK:         m.Id,
		PairId:     m.PairId,
		AuthorId:   m.AuthorId,
		AuthorName: m.AuthorName,
		Content:    m.Content,
		Kind:       m.Kind.String(),
		Timestamp:  m.Timestamp,
		Read:       m.Read,
	}
}

// Map Dynamo -> domain Message
func messageFromDynamo(dm dynamoMessage) (models.Message, error) {
	var kind models.MessageKind
	if err := kind.UnmarshalText([]byte(dm.Kind)); err != nil {
		return models.Message{}, err
	}

	pairId := dm.PairId
	if pairId == "" {
		pairId = strings.TrimPrefix(dm.PK, historyPrefix)
	}

	return models.Message{
		Id:         dm.SK,
		PairId:     pairId,
		AuthorId:   dm.AuthorId,
		AuthorName: dm.AuthorName,
		Content:    dm.Content,
		Kind:       kind,
		Timestamp:  dm.Timestamp,
		Read:       dm.Read,
	}, nil
}
