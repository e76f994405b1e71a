// Package sns publishes committed event records to an AWS SNS topic.
package sns

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/havenhq/chronicle/adapters"
)

// Message attribute names.
const (
	AttributeEventType   = "event-type"
	AttributeAggregateID = "aggregate-id"
	AttributeSequence    = "sequence"
	AttributeRecordedAt  = "recorded-at"
	AttributeContentType = "content-type"

	// AttributeContentEncoding is "base64" when the message body is the
	// base64 form of a binary payload.
	AttributeContentEncoding = "content-encoding"
)

// SNSClient defines the subset of the SNS API used by the publisher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher publishes event records to one SNS topic.
type Publisher struct {
	client   SNSClient
	topicARN    string
	fifo        bool
	contentType string
}

// Option configures an SNS Publisher.
type Option func(*Publisher)

// WithSNSClient sets a custom SNS client.
func WithSNSClient(client SNSClient) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithFIFO forces FIFO attributes on or off. By default they are set when
// the topic ARN ends in ".fifo".
func WithFIFO(fifo bool) Option {
	return func(p *Publisher) {
		p.fifo = fifo
	}
}

// WithContentType sets the media type of the payloads, normally
// chronicle.ContentTypeOf(codec). Defaults to application/json. SNS messages
// are text, so payloads of any other non-text type are sent base64 encoded.
func WithContentType(contentType string) Option {
	return func(p *Publisher) {
		if contentType != "" {
			p.contentType = contentType
		}
	}
}

// New creates a Publisher for topicARN.
func New(topicARN string, opts ...Option) *Publisher {
	p := &Publisher{
		topicARN:    topicARN,
		fifo:        strings.HasSuffix(topicARN, ".fifo"),
		contentType: "application/json",
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NewFromConfig creates a Publisher using an SNS client built from cfg.
func NewFromConfig(cfg aws.Config, topicARN string, opts ...Option) *Publisher {
	return New(topicARN, append([]Option{WithSNSClient(sns.NewFromConfig(cfg))}, opts...)...)
}

// Input builds the publish request for a record.
// FIFO topics group messages by aggregate and deduplicate on aggregate and sequence.
func (p *Publisher) Input(record adapters.EventRecord) *sns.PublishInput {
	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(record.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			AttributeEventType:   stringAttribute(record.EventType),
			AttributeAggregateID: stringAttribute(record.AggregateID.String()),
			AttributeSequence: {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.FormatUint(record.Sequence, 10)),
			},
			AttributeRecordedAt:  stringAttribute(record.RecordedAt.UTC().Format(time.RFC3339Nano)),
			AttributeContentType: stringAttribute(p.contentType),
		},
	}

	if !isText(p.contentType) {
		input.Message = aws.String(base64.StdEncoding.EncodeToString(record.Payload))
		input.MessageAttributes[AttributeContentEncoding] = stringAttribute("base64")
	}

	if p.fifo {
		input.MessageGroupId = aws.String(record.AggregateID.String())
		input.MessageDeduplicationId = aws.String(fmt.Sprintf("%s-%d", record.AggregateID, record.Sequence))
	}

	return input
}

// Publish sends records one at a time in the order given.
// On FIFO topics a failed record stops the batch so later sequences of the
// same aggregate are never delivered ahead of it.
func (p *Publisher) Publish(ctx context.Context, records []adapters.EventRecord) error {
	if p.client == nil {
		return fmt.Errorf("sns: client not configured")
	}
	if p.topicARN == "" {
		return fmt.Errorf("sns: topic ARN not configured")
	}

	var errs []error
	for _, record := range records {
		if _, err := p.client.Publish(ctx, p.Input(record)); err != nil {
			errs = append(errs, fmt.Errorf("sns: failed to publish %s@%d to %s: %w",
				record.AggregateID, record.Sequence, p.topicARN, err))
			if p.fifo {
				break
			}
		}
	}

	return errors.Join(errs...)
}

func isText(contentType string) bool {
	return contentType == "application/json" ||
		strings.HasSuffix(contentType, "+json") ||
		strings.HasPrefix(contentType, "text/")
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
