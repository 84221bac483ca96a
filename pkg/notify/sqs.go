package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	sqs "github.com/aws/aws-sdk-go-v2/service/sqs"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// SQS publishes events as JSON messages on an SQS queue. FIFO queues
// (with a ".fifo" suffix) group and deduplicate messages by upload.
type SQS struct {
	client   sqsClient
	queueURL string
	fifo     bool
}

// sqsClient is the part of *sqs.Client used for publishing
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ Notifier = (*SQS)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewSQS returns a notifier which publishes to the queue
func NewSQS(cfg aws.Config, queueURL string) (*SQS, error) {
	return newSQS(sqs.NewFromConfig(cfg), queueURL)
}

func newSQS(client sqsClient, queueURL string) (*SQS, error) {
	if queueURL == "" {
		return nil, errors.New("missing queue url")
	}
	return &SQS{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Notify sends the event as a single message
func (s *SQS) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if s.fifo {
		key := event.UploadID
		if key == "" {
			key = event.File.Path
		}
		input.MessageGroupId = aws.String(event.Event)
		input.MessageDeduplicationId = aws.String(dedupID(event.Event + ":" + key))
	}

	_, err = s.client.SendMessage(ctx, input)
	return err
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// dedupID trims the key to the 128 characters SQS allows
func dedupID(key string) string {
	if len(key) > 128 {
		return key[len(key)-128:]
	}
	return key
}
