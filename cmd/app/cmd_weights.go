package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"FinSynth/internal/repository"
	pkgkafka "FinSynth/pkg/kafka"
)

var (
	weightsGroup string
	weightsFrom  string
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Tail published weight vectors from Kafka",
	RunE:  runWeights,
}

func init() {
	rootCmd.AddCommand(weightsCmd)

	weightsCmd.Flags().StringVar(&weightsGroup, "group", "", "consumer group; empty tails without committing")
	weightsCmd.Flags().StringVar(&weightsFrom, "from", "latest", "start offset without a group: latest or earliest")
}

func runWeights(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	consumer, err := pkgkafka.NewConsumer(cfg.Publisher.Topic,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(weightsGroup),
		pkgkafka.WithConsumerStartOffset(weightsFrom),
	)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	defer consumer.Close()

	ctx, stop := signalContext()
	defer stop()

	return consumer.Run(ctx, func(_ context.Context, _, value []byte) error {
		var msg repository.WeightMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed message: %v\n", err)
			return nil
		}
		printWeights(msg)
		return nil
	})
}

func printWeights(msg repository.WeightMessage) {
	ids := make([]string, 0, len(msg.Weights))
	for id := range msg.Weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return msg.Weights[ids[i]] > msg.Weights[ids[j]] })

	fmt.Printf("as_of=%s workers=%d sum=%.6f\n", msg.AsOf.Format(time.RFC3339), len(ids), msg.Sum)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\t%.6f\n", id, msg.Weights[id])
	}
	w.Flush()
}
