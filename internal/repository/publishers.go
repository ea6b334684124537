package repository

import (
	"context"
	"sort"
	"time"

	"FinSynth/internal/domain/models"
	applogger "FinSynth/pkg/logger"
)

// MessageProducer is the subset of pkg/kafka.Producer the publishers need.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// WeightMessage is the published form of a weight vector.
type WeightMessage struct {
	AsOf    time.Time          `json:"as_of"`
	Weights map[string]float64 `json:"weights"`
	Sum     float64            `json:"sum"`
}

// KafkaWeightPublisher sends each vector to a topic keyed by its timestamp.
type KafkaWeightPublisher struct {
	producer MessageProducer
	topic    string
}

func NewKafkaWeightPublisher(p MessageProducer, topic string) *KafkaWeightPublisher {
	return &KafkaWeightPublisher{producer: p, topic: topic}
}

func (p *KafkaWeightPublisher) Publish(ctx context.Context, v models.WeightVector) error {
	msg := WeightMessage{AsOf: v.AsOf.UTC(), Weights: v.Weights, Sum: v.Sum()}
	key := []byte(v.AsOf.UTC().Format(time.RFC3339))
	return p.producer.Publish(ctx, p.topic, key, msg)
}

// KafkaLogPublisher adapts a producer to logger.Publisher for error digests.
type KafkaLogPublisher struct {
	producer MessageProducer
	key      []byte
}

func NewKafkaLogPublisher(p MessageProducer, source string) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: p, key: []byte(source)}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, p.key, payload)
}

// LogWeightPublisher writes vectors to the structured log. Used when no
// broker is configured.
type LogWeightPublisher struct {
	l *applogger.Logger
}

func NewLogWeightPublisher(l *applogger.Logger) *LogWeightPublisher {
	return &LogWeightPublisher{l: l}
}

func (p *LogWeightPublisher) Publish(_ context.Context, v models.WeightVector) error {
	ids := make([]string, 0, len(v.Weights))
	for id := range v.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p.l.Debug("weight",
			applogger.String("worker_id", id),
			applogger.Float64("weight", v.Weights[id]),
		)
	}
	p.l.Info("weights published",
		applogger.Time("as_of", v.AsOf),
		applogger.Int("workers", len(v.Weights)),
		applogger.Float64("sum", v.Sum()),
	)
	return nil
}

// NoopArchive discards everything.
type NoopArchive struct{}

func (NoopArchive) SaveSamples(context.Context, []models.ScoreSample) error { return nil }
func (NoopArchive) SaveWeights(context.Context, models.WeightVector) error  { return nil }
