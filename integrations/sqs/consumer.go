package sqs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/tags"
)

// Handler processes one message. A nil error means the message is deleted.
type Handler func(ctx context.Context, msg types.Message) error

// Wrap reports every invocation of h at the mq_consumer log point. The
// message's trace id attribute, when present, is put on the context.
func Wrap(queue string, action string, h Handler, opts ...Option) Handler {
	cfg := newConfig(opts)
	return func(ctx context.Context, msg types.Message) error {
		if v, ok := msg.MessageAttributes[TraceAttribute]; ok && v.StringValue != nil {
			ctx = observe.WithTraceID(ctx, *v.StringValue)
		}
		ctx, _ = observe.EnsureTraceID(ctx)

		payload := body(msg.Body)
		start := time.Now()
		err := h(ctx, msg)
		cfg.engineOrDefault().Complete(ctx, cfg.site(observe.LogPointMQConsumer, queue, action), callscope.Call{
			Start: start,
			Cost:  time.Since(start),
			Input: []any{payload},
			Err:   err,
			Sources: tags.Sources{
				Args:    []any{payload},
				Headers: attributeHeaders(msg.MessageAttributes),
			},
		})
		return err
	}
}

const (
	maxMessages       = 5
	waitTimeSeconds   = 10
	deleteTimeout     = 5 * time.Second
	processingTimeout = 30 * time.Second
	receiveBackoff    = 2 * time.Second
)

// Client is the subset of *sqs.Client used by Consumer.
type Client interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer long-polls a queue and runs an instrumented handler per message.
type Consumer struct {
	client   Client
	queueURL string
	handler  Handler
	logger   *slog.Logger
}

// NewConsumer wraps h with Wrap, using the queue name as service and
// "Receive" as action.
func NewConsumer(client Client, queueURL string, h Handler, logger *slog.Logger, opts ...Option) *Consumer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		handler:  Wrap(QueueName(queueURL), "Receive", h, opts...),
		logger:   logger,
	}
}

// Start polls until ctx is canceled, then waits for in-flight messages.
func (c *Consumer) Start(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for ctx.Err() == nil {
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.queueURL),
			MaxNumberOfMessages:   maxMessages,
			WaitTimeSeconds:       waitTimeSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Warn("sqs receive failed", slog.String("queue", c.queueURL), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		for _, msg := range out.Messages {
			wg.Add(1)
			go func(m types.Message) {
				defer wg.Done()
				msgCtx, cancel := context.WithTimeout(context.Background(), processingTimeout)
				defer cancel()
				c.process(msgCtx, m)
			}(msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		c.logger.Warn("sqs message without body", slog.String("message_id", aws.ToString(msg.MessageId)))
		return
	}
	if err := c.handler(ctx, msg); err != nil {
		// Left for redelivery after the visibility timeout.
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if _, err := c.client.DeleteMessage(deleteCtx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		c.logger.Warn("sqs delete failed", slog.String("message_id", aws.ToString(msg.MessageId)), slog.Any("error", err))
	}
}
