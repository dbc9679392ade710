package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/ragcore/retrieval-engine/internal/model"
)

// PubSubPromoter publishes live-web results to a topic for asynchronous
// chunking/embedding into the persistent web-KB tier. The teacher's go.mod
// declared cloud.google.com/go/pubsub but never used it; this gives it the
// fire-and-forget ingestion role spec §4.7 requires.
type PubSubPromoter struct {
	topic *pubsub.Topic
}

func NewPubSubPromoter(topic *pubsub.Topic) *PubSubPromoter {
	return &PubSubPromoter{topic: topic}
}

var _ Promoter = (*PubSubPromoter)(nil)

type promotionMessage struct {
	Results []model.WebSearchResult `json:"results"`
}

func (p *PubSubPromoter) Promote(ctx context.Context, results []model.WebSearchResult) error {
	if len(results) == 0 {
		return nil
	}
	payload, err := json.Marshal(promotionMessage{Results: results})
	if err != nil {
		return fmt.Errorf("orchestrator.PubSubPromoter.Promote: marshal: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("orchestrator.PubSubPromoter.Promote: publish: %w", err)
	}
	return nil
}
