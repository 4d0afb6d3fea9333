package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agriapp/server/model"
	"go.uber.org/zap"
)

// EventType names a progress mutation.
type EventType string

const (
	EventCreated            EventType = "progress.created"
	EventUpdated            EventType = "progress.updated"
	EventDeleted            EventType = "progress.deleted"
	EventMilestoneCompleted EventType = "progress.milestone_completed"
	EventRefreshed          EventType = "progress.refreshed"
	EventBadgeAwarded       EventType = "progress.badge_awarded"
	EventLiked              EventType = "progress.liked"
)

// Event is published after every successful mutation.
type Event struct {
	Type        EventType `json:"type"`
	ProgressID  string    `json:"progress_id"`
	UserID      string    `json:"user_id"`
	PlanID      string    `json:"planting_plan_id"`
	Percentage  float64   `json:"progress_percentage"`
	MilestoneID string    `json:"milestone_id,omitempty"`
	Badges      []string  `json:"badges,omitempty"`
	Likes       int64     `json:"likes"`
	At          time.Time `json:"at"`
}

func newEvent(t EventType, rec *model.PlantProgress, at time.Time) Event {
	return Event{
		Type:       t,
		ProgressID: rec.ID,
		UserID:     rec.UserID,
		PlanID:     rec.PlantingPlanID,
		Percentage: rec.ProgressPercentage,
		Likes:      rec.Likes,
		At:         at,
	}
}

// EventChannel is the pub/sub channel carrying events for one user.
func EventChannel(userID string) string {
	return "progress:" + userID
}

// Publisher is satisfied by cache.PubSub.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

func (svc *Service) publish(ctx context.Context, ev Event) {
	if svc.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		svc.logger.Error("encode progress event", zap.Error(err))
		return
	}
	if err := svc.publisher.Publish(ctx, EventChannel(ev.UserID), string(payload)); err != nil {
		svc.logger.Warn("publish progress event failed",
			zap.String("type", string(ev.Type)),
			zap.String("progress_id", ev.ProgressID),
			zap.Error(err))
	}
}
