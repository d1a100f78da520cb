package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck passes when any configured broker answers and, when topics are given, every
// topic has partitions. Consumers otherwise sit in a silent rebalance loop on a fresh cluster.
func ReadyCheck(brokers string, topics ...string) func(context.Context) error {
	return func(ctx context.Context) error {
		list := SplitBrokers(brokers)
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		var errs []error
		for _, addr := range list {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			err = checkTopics(conn, topics)
			_ = conn.Close()
			return err
		}
		return errors.Join(errs...)
	}
}

func checkTopics(conn *kafka.Conn, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	partitions, err := conn.ReadPartitions(topics...)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(topics))
	for _, p := range partitions {
		seen[p.Topic] = true
	}
	for _, topic := range topics {
		if !seen[topic] {
			return fmt.Errorf("kafka topic %q missing", topic)
		}
	}
	return nil
}
