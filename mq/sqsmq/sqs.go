package sqsmq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/zlnvch/duo/mq"
)

type SQSMessageQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSMessageQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSMessageQueue, error) {
	client, err := newSQSClient(ctx, devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}

	queueURL, err := findQueueURL(ctx, client, queueName)
	if err != nil {
		return nil, err
	}

	return &SQSMessageQueue{client: client, queueURL: queueURL}, nil
}

func findQueueURL(ctx context.Context, client *sqs.Client, queueName string) (string, error) {
	queues, err := getQueues(ctx, client)
	if err != nil {
		return "", err
	}

	for _, q := range queues {
		if strings.HasSuffix(q, "/"+queueName) {
			return q, nil
		}
	}
	return "", fmt.Errorf("queue '%s' not found in SQS", queueName)
}

func (q *SQSMessageQueue) Send(ctx context.Context, body string) error {
	return sendMessage(ctx, q, body, 0)
}

func (q *SQSMessageQueue) SendDelayed(ctx context.Context, body string, delay time.Duration) error {
	return sendMessage(ctx, q, body, delaySeconds(delay))
}

func (q *SQSMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	return receiveMessage(ctx, q, visibilityTimeout)
}

func (q *SQSMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	return deleteMessage(ctx, q, msg)
}
