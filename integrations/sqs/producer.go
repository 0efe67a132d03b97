package sqs

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/tags"
)

// SendAPI is the subset of *sqs.Client used by Producer.
type SendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Producer decorates a SendAPI and reports every send.
type Producer struct {
	client SendAPI
	cfg    config
}

func NewProducer(client SendAPI, opts ...Option) *Producer {
	return &Producer{client: client, cfg: newConfig(opts)}
}

// SendMessage sends params through the wrapped client. The trace id from ctx
// is added as a message attribute unless params already carries one; params
// itself is not modified.
func (p *Producer) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	in := params
	if in == nil {
		in = &sqs.SendMessageInput{}
	}
	if id := observe.TraceID(ctx); id != "" {
		if _, ok := in.MessageAttributes[TraceAttribute]; !ok {
			cp := *in
			cp.MessageAttributes = make(map[string]types.MessageAttributeValue, len(in.MessageAttributes)+1)
			for k, v := range in.MessageAttributes {
				cp.MessageAttributes[k] = v
			}
			cp.MessageAttributes[TraceAttribute] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(id),
			}
			in = &cp
		}
	}

	start := time.Now()
	out, err := p.client.SendMessage(ctx, in, optFns...)
	cost := time.Since(start)

	call := callscope.Call{
		Start: start,
		Cost:  cost,
		Input: []any{body(in.MessageBody)},
		Err:   err,
		Sources: tags.Sources{
			Args:    []any{body(in.MessageBody)},
			Headers: attributeHeaders(in.MessageAttributes),
		},
	}
	if out != nil {
		call.Output = map[string]any{"messageId": aws.ToString(out.MessageId)}
	}
	p.cfg.engineOrDefault().Complete(ctx, p.cfg.site(observe.LogPointMQProducer, QueueName(aws.ToString(in.QueueUrl)), "SendMessage"), call)
	return out, err
}
