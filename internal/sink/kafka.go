// Package sink publishes terminal samples onto a Kafka topic as a
// best-effort core.ResultSink.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/saxsflow/saxsflow/core"
)

// KafkaSink publishes a terminal-sample envelope to topic on every
// Publish call. Producer errors are logged with the sample id and
// swallowed: per the Runtime's AttachSink contract, sinks never affect a
// batch's outcome.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	log    zerolog.Logger
}

// NewKafkaSink dials brokers and ensures topic exists, creating it with one
// partition and replication factor 1 if missing and the client is
// authorized to do so.
// A failure to create the topic is logged and does not prevent
// construction: publish failures downstream are non-fatal anyway.
func NewKafkaSink(ctx context.Context, brokers []string, topic string, log zerolog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("kafka sink: creating client: %w", err)
	}

	admin := kadm.NewClient(client)
	meta, err := admin.Metadata(ctx, topic)
	if err != nil || len(meta.Topics[topic].Partitions) == 0 {
		if _, createErr := admin.CreateTopic(ctx, 1, 1, nil, topic); createErr != nil {
			log.Warn().Err(createErr).Str("topic", topic).Msg("kafka sink: could not create topic, proceeding anyway")
		}
	}

	return &KafkaSink{client: client, topic: topic, log: log}, nil
}

type resultEnvelope struct {
	SampleId           string  `json:"sample_id"`
	StageNum           uint32  `json:"stage_num"`
	ProcessedPeakCount int     `json:"processed_peak_count"`
	FinalIntensityHead float64 `json:"final_intensity_head"`
}

// Publish marshals sample into a small JSON envelope and produces it
// asynchronously onto the configured topic.
func (s *KafkaSink) Publish(ctx context.Context, sample *core.Sample) error {
	var head float64
	if len(sample.Y) > 0 {
		head = sample.Y[0]
	}

	envelope := resultEnvelope{
		SampleId:           sample.Id,
		StageNum:           sample.StageNum,
		ProcessedPeakCount: len(sample.Meta.Processed),
		FinalIntensityHead: head,
	}
	buf, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("kafka sink: marshal envelope: %w", err)
	}

	record := &kgo.Record{Topic: s.topic, Key: []byte(sample.Id), Value: buf}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.log.Warn().Err(err).Str("sample", sample.Id).Msg("kafka sink: produce failed")
		}
	})
	return nil
}

// Close releases the underlying Kafka client.
func (s *KafkaSink) Close() { s.client.Close() }
