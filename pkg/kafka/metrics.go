package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	producerMsgsTotal   *prometheus.CounterVec
	producerBytesTotal  *prometheus.CounterVec
	producerLatencyHist *prometheus.HistogramVec
	consumerMsgsTotal   *prometheus.CounterVec
)

func registerMetrics() {
	RegisterMetrics(prometheus.DefaultRegisterer)
}

// RegisterMetrics registers the client metrics on reg. Only the first call
// has an effect; producers and consumers fall back to the default registerer.
func RegisterMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		f := promauto.With(reg)
		producerMsgsTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsynth_kafka_producer_messages_total",
			Help: "Messages published to Kafka",
		}, []string{"topic", "compression", "result"})
		producerBytesTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsynth_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic"})
		producerLatencyHist = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finsynth_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
		consumerMsgsTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsynth_kafka_consumer_messages_total",
			Help: "Messages handled by consumers",
		}, []string{"topic", "result"})
	})
}

func observePublish(topic, comp string, bytes int, dur time.Duration, err error) {
	if producerMsgsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgsTotal.WithLabelValues(topic, comp, result).Inc()
	producerBytesTotal.WithLabelValues(topic).Add(float64(bytes))
	producerLatencyHist.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeConsume(topic string, err error) {
	if consumerMsgsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	consumerMsgsTotal.WithLabelValues(topic, result).Inc()
}
