// Package sqs instruments Amazon SQS: Producer reports sends at the
// mq_producer log point and Wrap/Consumer report message handling at
// mq_consumer. The trace id travels as a string message attribute.
package sqs

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/classify"
	"github.com/aponysus/callscope/observe"
)

// TraceAttribute is the message attribute carrying the trace id.
const TraceAttribute = "traceId"

type config struct {
	engine *callscope.Engine
	rule   classify.Rule
	tags   []string
}

// Option configures Producer, Wrap and Consumer.
type Option func(*config)

// WithEngine selects the engine. The default engine is used otherwise.
func WithEngine(e *callscope.Engine) Option {
	return func(c *config) { c.engine = e }
}

// WithRule overrides the built-in SQS rule.
func WithRule(rule classify.Rule) Option {
	return func(c *config) { c.rule = rule }
}

// WithTags sets tag templates resolved against the JSON message body and the
// string message attributes.
func WithTags(templates ...string) Option {
	return func(c *config) { c.tags = append(c.tags, templates...) }
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

func (c config) engineOrDefault() *callscope.Engine {
	if c.engine != nil {
		return c.engine
	}
	return callscope.Default()
}

func (c config) site(lp observe.LogPoint, queue, action string) callscope.Site {
	return callscope.Site{
		LogPoint: lp,
		Service:  queue,
		Action:   action,
		Rule:     c.rule,
		Tags:     c.tags,
	}
}

// QueueName returns the last path segment of a queue URL.
func QueueName(queueURL string) string {
	queueURL = strings.TrimRight(queueURL, "/")
	if i := strings.LastIndexByte(queueURL, '/'); i >= 0 {
		return queueURL[i+1:]
	}
	return queueURL
}

// body decodes a JSON message body so tag placeholders can navigate it.
// Other bodies are returned as strings.
func body(s *string) any {
	raw := aws.ToString(s)
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	return raw
}

// attributeHeaders exposes string attributes as headers for tag lookup.
func attributeHeaders(attrs map[string]types.MessageAttributeValue) http.Header {
	h := make(http.Header, len(attrs))
	for k, v := range attrs {
		if v.StringValue != nil {
			h[k] = []string{*v.StringValue}
		}
	}
	return h
}
