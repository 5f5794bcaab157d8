package rankingservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Topics of the domain events published after a commit.
const (
	TopicWeekLocked      = "ranking.week.locked"
	TopicWeekEvaluated   = "ranking.week.evaluated"
	TopicWeekOpened      = "ranking.week.opened"
	TopicWeekArchived    = "ranking.week.archived"
	TopicTierEvaluated   = "ranking.tier.evaluated"
	TopicUserTierChanged = "ranking.user.tier_changed"
	TopicRewardGranted   = "ranking.reward.granted"
)

// EventPublisher hands domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, correlationID string, payload any) error
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, string, string, any) error { return nil }

type WeekEvent struct {
	WeekID  int64     `json:"week_id"`
	WeekKey string    `json:"week_key"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}

type TierEvaluatedEvent struct {
	WeekID       int64  `json:"week_id"`
	TierID       int64  `json:"tier_id"`
	TierName     string `json:"tier_name"`
	Participants int    `json:"participants"`
	Groups       int    `json:"groups"`
	Promoted     int    `json:"promoted"`
	Maintained   int    `json:"maintained"`
	Demoted      int    `json:"demoted"`
}

type UserTierChangedEvent struct {
	WeekID     int64  `json:"week_id"`
	UserID     int64  `json:"user_id"`
	FromTierID int64  `json:"from_tier_id"`
	ToTierID   int64  `json:"to_tier_id"`
	Reason     string `json:"reason"`
}

type RewardGrantedEvent struct {
	WeekID     int64           `json:"week_id"`
	UserID     int64           `json:"user_id"`
	TierID     int64           `json:"tier_id"`
	RewardType string          `json:"reward_type"`
	Amount     decimal.Decimal `json:"amount"`
}

// publish is best-effort. The data is already committed, so a broker
// failure is logged and counted, never returned.
func (s *RankingService) publish(ctx context.Context, topic, correlationID string, payload any) {
	err := s.events.Publish(ctx, topic, correlationID, payload)
	s.metrics.RecordEventPublished(ctx, topic, err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ranking event",
			slog.String("topic", topic),
			slog.String("correlation_id", correlationID),
			slog.Any("error", err),
		)
	}
}

func (s *RankingService) publishWeek(ctx context.Context, topic, correlationID string, w WeekView) {
	at := s.clock.Now().UTC()
	s.publish(ctx, topic, correlationID, WeekEvent{
		WeekID:  w.ID,
		WeekKey: w.Key,
		Status:  string(w.Status),
		At:      at,
	})
}

// publishTierOutcomes announces committed tiers. Skipped tiers were
// announced by the run that evaluated them.
func (s *RankingService) publishTierOutcomes(ctx context.Context, correlationID string, weekID int64, outcomes []TierOutcome) {
	for _, o := range outcomes {
		if !o.Skipped {
			s.publishTierOutcome(ctx, correlationID, weekID, o)
		}
	}
}

func (s *RankingService) publishTierOutcome(ctx context.Context, correlationID string, weekID int64, o TierOutcome) {
	s.publish(ctx, TopicTierEvaluated, correlationID, TierEvaluatedEvent{
		WeekID:       weekID,
		TierID:       o.TierID,
		TierName:     string(o.TierName),
		Participants: o.Participants,
		Groups:       o.Groups,
		Promoted:     o.Promoted,
		Maintained:   o.Maintained,
		Demoted:      o.Demoted,
	})
	for _, t := range o.Transitions {
		if !t.Moved() {
			continue
		}
		s.publish(ctx, TopicUserTierChanged, correlationID, UserTierChangedEvent{
			WeekID:     weekID,
			UserID:     t.UserID,
			FromTierID: t.FromTierID,
			ToTierID:   *t.ToTierID,
			Reason:     string(t.Reason),
		})
	}
	for _, g := range o.Grants {
		s.publish(ctx, TopicRewardGranted, correlationID, RewardGrantedEvent{
			WeekID:     weekID,
			UserID:     g.UserID,
			TierID:     g.TierID,
			RewardType: string(g.RewardType),
			Amount:     g.Amount,
		})
	}
}
