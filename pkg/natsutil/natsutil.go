// Package natsutil provides typed NATS publish/consume helpers with
// OpenTelemetry trace propagation, header-counted redelivery and a
// dead-letter subject.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

const (
	// HeaderRetryCount carries how many times a message has been redelivered.
	HeaderRetryCount = "X-Retry-Count"
	// HeaderError carries the last handler error on dead-lettered messages.
	HeaderError = "X-Error"
)

// Publisher is the subset of *nats.Conn used for publishing.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publish serializes v as JSON and publishes it to subject, injecting the
// trace context of ctx into the message headers.
func Publish[T any](ctx context.Context, p Publisher, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("natsutil: marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsutil: publish %s: %w", subject, err)
	}
	return nil
}

// RetryCount returns the redelivery count recorded on msg.
func RetryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, err := strconv.Atoi(msg.Header.Get(HeaderRetryCount))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ConsumerOpts configures Consume.
type ConsumerOpts struct {
	// Queue, when set, load-balances the subject across consumers.
	Queue string
	// MaxRetries is how many times a failed message is republished before it
	// goes to DeadLetter.
	MaxRetries int
	// DeadLetter receives messages that failed MaxRetries times or could not
	// be decoded. Empty drops them.
	DeadLetter string
	Logger     *slog.Logger
}

// Consumer decodes messages of type T and runs a handler on them.
type Consumer[T any] struct {
	pub     Publisher
	opts    ConsumerOpts
	handler func(context.Context, T) error
}

// NewConsumer builds a Consumer that republishes through pub.
func NewConsumer[T any](pub Publisher, opts ConsumerOpts, handler func(context.Context, T) error) *Consumer[T] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Consumer[T]{pub: pub, opts: opts, handler: handler}
}

// Subscribe registers the consumer on subject.
func (c *Consumer[T]) Subscribe(nc *nats.Conn, subject string) (*nats.Subscription, error) {
	if c.opts.Queue != "" {
		return nc.QueueSubscribe(subject, c.opts.Queue, c.Handle)
	}
	return nc.Subscribe(subject, c.Handle)
}

// Handle processes a single message. It never returns an error: failures are
// redelivered with an incremented retry header or dead-lettered.
func (c *Consumer[T]) Handle(msg *nats.Msg) {
	log := c.opts.Logger.With("subject", msg.Subject)

	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		log.Warn("dropping malformed message", "err", err)
		c.deadLetter(msg, err)
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
	err := c.handler(ctx, v)
	if err == nil {
		return
	}

	attempt := RetryCount(msg)
	if attempt >= c.opts.MaxRetries {
		log.Error("message failed permanently", "retries", attempt, "err", err)
		c.deadLetter(msg, err)
		return
	}

	log.Warn("message failed, retrying", "retry", attempt+1, "max", c.opts.MaxRetries, "err", err)
	retry := clone(msg, msg.Subject)
	retry.Header.Set(HeaderRetryCount, strconv.Itoa(attempt+1))
	if perr := c.pub.PublishMsg(retry); perr != nil {
		log.Error("republish failed", "err", perr)
	}
}

func (c *Consumer[T]) deadLetter(msg *nats.Msg, cause error) {
	if c.opts.DeadLetter == "" {
		return
	}
	dl := clone(msg, c.opts.DeadLetter)
	dl.Header.Set(HeaderError, cause.Error())
	if err := c.pub.PublishMsg(dl); err != nil {
		c.opts.Logger.Error("dead-letter publish failed", "subject", c.opts.DeadLetter, "err", err)
	}
}

func clone(msg *nats.Msg, subject string) *nats.Msg {
	out := &nats.Msg{Subject: subject, Data: msg.Data, Header: make(nats.Header, len(msg.Header))}
	for k, vs := range msg.Header {
		out.Header[k] = append([]string(nil), vs...)
	}
	return out
}
