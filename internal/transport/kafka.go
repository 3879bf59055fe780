package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const DefaultKafkaGroup = "pushengine"

// Kafka consumes a topic with a consumer group; each message value is one
// raw push. Offsets are committed after delivery.
//
// Endpoint: kafka://broker1:9092,broker2:9092/topic?group=id
type Kafka struct {
	brokers []string
	topic   string
	group   string
	dialer  *kafka.Dialer
	log     logx.Logger
}

func NewKafka(o Options, log logx.Logger) (*Kafka, error) {
	brokers, topic, group, err := parseKafkaEndpoint(o.Endpoint)
	if err != nil {
		return nil, err
	}
	dialer := &kafka.Dialer{Timeout: dialTimeout(o), DualStack: true}
	if !o.Credentials.IsZero() {
		dialer.SASLMechanism = plain.Mechanism{
			Username: o.Credentials.Username,
			Password: o.Credentials.Password,
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Kafka{brokers: brokers, topic: topic, group: group, dialer: dialer, log: log}, nil
}

func parseKafkaEndpoint(endpoint string) (brokers []string, topic, group string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(endpoint), "kafka://")
	if !ok {
		return nil, "", "", errors.New("kafka endpoint must start with kafka://")
	}
	hosts, tail, _ := strings.Cut(rest, "/")
	for _, b := range strings.Split(hosts, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, "", "", errors.New("kafka endpoint has no brokers")
	}
	u, err := url.Parse("/" + tail)
	if err != nil {
		return nil, "", "", fmt.Errorf("parsing kafka endpoint: %w", err)
	}
	topic = strings.Trim(u.Path, "/")
	if topic == "" || strings.Contains(topic, "/") {
		return nil, "", "", errors.New("kafka endpoint needs exactly one topic")
	}
	group = strings.TrimSpace(u.Query().Get("group"))
	if group == "" {
		group = DefaultKafkaGroup
	}
	return brokers, topic, group, nil
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Topic() string { return k.topic }

func (k *Kafka) Group() string { return k.group }

func (k *Kafka) Brokers() []string { return append([]string(nil), k.brokers...) }

func (k *Kafka) Listen(ctx context.Context, h Handler) error {
	if err := k.probe(ctx); err != nil {
		return err
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    k.topic,
		GroupID:  k.group,
		Dialer:   k.dialer,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	k.log.Info("kafka reader started", logx.String("topic", k.topic), logx.String("group", k.group))
	h.Connected(ctx)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		h.Deliver(ctx, m.Value)
		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			k.log.Warn("kafka commit failed",
				logx.Int("partition", m.Partition),
				logx.Int64("offset", m.Offset),
				logx.Err(err))
		}
	}
}

// probe dials brokers in order until one answers.
func (k *Kafka) probe(ctx context.Context) error {
	var errs []error
	for _, b := range k.brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", b)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", b, err))
	}
	return fmt.Errorf("kafka brokers unreachable: %w", errors.Join(errs...))
}
