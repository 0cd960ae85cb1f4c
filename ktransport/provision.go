package ktransport

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// EnsureTopics creates the given topics. Topics that already exist are left
// untouched.
func EnsureTopics(ctx context.Context, client *kgo.Client, partitions int32, replicationFactor int16, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	adm := kadm.NewClient(client)

	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	var errs []error
	for _, topic := range resp.Sorted() {
		if topic.Err == nil || errors.Is(topic.Err, kerr.TopicAlreadyExists) {
			continue
		}
		errs = append(errs, fmt.Errorf("topic %s: %w", topic.Topic, topic.Err))
	}
	return errors.Join(errs...)
}

// Topics returns the Kafka topics referenced by ts, in order and without
// duplicates.
func Topics(ts ...Transport) []string {
	seen := map[string]bool{}
	var topics []string
	for _, t := range ts {
		if t.Kind != KindKafka || t.Topic == "" || seen[t.Topic] {
			continue
		}
		seen[t.Topic] = true
		topics = append(topics, t.Topic)
	}
	return topics
}
