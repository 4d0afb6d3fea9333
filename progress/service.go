package progress

import (
	"context"
	"errors"
	"time"

	"github.com/agriapp/server/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service maintains progress records against their planting plans.
// Every mutation runs read → pure transform → version-checked write while
// holding the record's lock.
type Service struct {
	plans     PlanStore
	records   ProgressStore
	locker    Locker
	rules     []BadgeRule
	publisher Publisher
	ranking   *Ranking
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithBadgeRules replaces DefaultBadgeRules.
func WithBadgeRules(rules []BadgeRule) Option { return func(s *Service) { s.rules = rules } }

// WithPublisher enables progress events.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithRanking keeps the likes ranking in sync.
func WithRanking(r *Ranking) Option { return func(s *Service) { s.ranking = r } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a progress Service.
func NewService(plans PlanStore, records ProgressStore, logger *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		plans:   plans,
		records: records,
		locker:  NewLocalLocker(),
		rules:   DefaultBadgeRules,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Records exposes the underlying store for maintenance tasks.
func (svc *Service) Records() ProgressStore { return svc.records }

func (svc *Service) lock(ctx context.Context, key string) (func(), error) {
	return svc.locker.Lock(ctx, key)
}

// Create stores a new record for rec.UserID on rec.PlantingPlanID. The plan
// must exist and the user must not already track it.
func (svc *Service) Create(ctx context.Context, rec model.PlantProgress) (model.PlantProgress, error) {
	rec.Normalize()
	if err := validateStruct(&rec); err != nil {
		return model.PlantProgress{}, err
	}
	if err := validateBadges(rec.AwardedBadges); err != nil {
		return model.PlantProgress{}, err
	}
	plan, err := svc.plans.FindByID(ctx, rec.PlantingPlanID)
	if err != nil {
		return model.PlantProgress{}, err
	}

	unlock, err := svc.lock(ctx, "create:"+rec.UserID+":"+rec.PlantingPlanID)
	if err != nil {
		return model.PlantProgress{}, err
	}
	defer unlock()

	existing, err := svc.records.FindByUserAndPlan(ctx, rec.UserID, rec.PlantingPlanID)
	switch {
	case err == nil:
		return model.PlantProgress{}, conflict("progress already exists", existing.ID)
	case !errors.Is(err, ErrNotFound):
		return model.PlantProgress{}, err
	}

	now := svc.now()
	out := rec.Clone()
	out.ID = uuid.NewString()
	out.Version = 0
	if out.StartedAt.IsZero() {
		out.StartedAt = now
	}
	out.LastUpdatedAt = now
	out.CompletedMilestones = dedupeMilestones(out.CompletedMilestones)
	for i := range out.CompletedMilestones {
		if out.CompletedMilestones[i].CompletedAt.IsZero() {
			out.CompletedMilestones[i].CompletedAt = now
		}
	}
	out.AwardedBadges = mergeBadges(nil, out.AwardedBadges)
	out.ProgressPercentage = Percentage(out.CompletedMilestones, &plan)

	if err := svc.records.Create(ctx, &out); err != nil {
		return model.PlantProgress{}, err
	}
	svc.logger.Info("progress created",
		zap.String("progress_id", out.ID),
		zap.String("user_id", out.UserID),
		zap.String("plan_id", out.PlantingPlanID),
		zap.Float64("percentage", out.ProgressPercentage))
	svc.publish(ctx, newEvent(EventCreated, &out, now))
	return out, nil
}

// Get returns the record with the given id.
func (svc *Service) Get(ctx context.Context, id string) (model.PlantProgress, error) {
	return svc.records.FindByID(ctx, id)
}

// List returns every record.
func (svc *Service) List(ctx context.Context) ([]model.PlantProgress, error) {
	return svc.records.FindAll(ctx)
}

// ListByUser returns the records owned by userID.
func (svc *Service) ListByUser(ctx context.Context, userID string) ([]model.PlantProgress, error) {
	return svc.records.FindByUserID(ctx, userID)
}

// ListByPlan returns the records tracking planID.
func (svc *Service) ListByPlan(ctx context.Context, planID string) ([]model.PlantProgress, error) {
	return svc.records.FindByPlanID(ctx, planID)
}

// GetByUserAndPlan returns the single record for the (user, plan) pair.
func (svc *Service) GetByUserAndPlan(ctx context.Context, userID, planID string) (model.PlantProgress, error) {
	return svc.records.FindByUserAndPlan(ctx, userID, planID)
}

// RecentByUser returns userID's records, most recently updated first.
func (svc *Service) RecentByUser(ctx context.Context, userID string) ([]model.PlantProgress, error) {
	return svc.records.FindByUserIDOrderByLastUpdatedDesc(ctx, userID)
}

// Update replaces the client-owned fields of a record: start time and the
// completed milestone set. Owner, plan and likes are kept from the stored
// record, badges supplied by the caller are added to the stored ones, and
// the percentage and badge rules are re-applied before saving.
func (svc *Service) Update(ctx context.Context, id string, rec model.PlantProgress) (model.PlantProgress, error) {
	rec.Normalize()
	for i := range rec.CompletedMilestones {
		if err := validateStruct(&rec.CompletedMilestones[i]); err != nil {
			return model.PlantProgress{}, err
		}
	}
	if err := validateBadges(rec.AwardedBadges); err != nil {
		return model.PlantProgress{}, err
	}

	unlock, err := svc.lock(ctx, id)
	if err != nil {
		return model.PlantProgress{}, err
	}
	defer unlock()

	stored, err := svc.records.FindByID(ctx, id)
	if err != nil {
		return model.PlantProgress{}, err
	}
	plan, err := svc.plans.FindByID(ctx, stored.PlantingPlanID)
	if err != nil {
		return model.PlantProgress{}, err
	}

	now := svc.now()
	next := stored.Clone()
	if !rec.StartedAt.IsZero() {
		next.StartedAt = rec.StartedAt
	}
	next.CompletedMilestones = dedupeMilestones(rec.CompletedMilestones)
	for i := range next.CompletedMilestones {
		if next.CompletedMilestones[i].CompletedAt.IsZero() {
			next.CompletedMilestones[i].CompletedAt = now
		}
	}
	next.AwardedBadges = mergeBadges(stored.AwardedBadges, rec.AwardedBadges)
	next, granted := Recompute(next, &plan, svc.rules)
	next.LastUpdatedAt = now

	if err := svc.records.Save(ctx, &next); err != nil {
		return model.PlantProgress{}, err
	}
	svc.logGranted(&next, granted)
	ev := newEvent(EventUpdated, &next, now)
	ev.Badges = granted
	svc.publish(ctx, ev)
	return next, nil
}

// Delete removes the record with the given id.
func (svc *Service) Delete(ctx context.Context, id string) error {
	unlock, err := svc.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := svc.records.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.records.DeleteByID(ctx, id); err != nil {
		return err
	}
	if svc.ranking != nil {
		if err := svc.ranking.Remove(ctx, id); err != nil {
			svc.logger.Warn("ranking remove failed", zap.String("progress_id", id), zap.Error(err))
		}
	}
	svc.logger.Info("progress deleted", zap.String("progress_id", id), zap.String("user_id", rec.UserID))
	svc.publish(ctx, newEvent(EventDeleted, &rec, svc.now()))
	return nil
}

// CompleteMilestone marks entry's milestone as done. Completing a milestone
// that is already in the set changes nothing and skips the refresh; the
// returned bool reports whether the entry was added. A new entry is
// persisted first and the percentage refresh runs as a second write.
func (svc *Service) CompleteMilestone(ctx context.Context, id string, entry model.CompletedMilestone) (model.PlantProgress, bool, error) {
	if err := validateStruct(&entry); err != nil {
		return model.PlantProgress{}, false, err
	}

	unlock, err := svc.lock(ctx, id)
	if err != nil {
		return model.PlantProgress{}, false, err
	}
	defer unlock()

	rec, err := svc.records.FindByID(ctx, id)
	if err != nil {
		return model.PlantProgress{}, false, err
	}
	// The refresh below needs the plan; fail before writing anything.
	if _, err := svc.plans.FindByID(ctx, rec.PlantingPlanID); err != nil {
		return model.PlantProgress{}, false, err
	}

	now := svc.now()
	if entry.CompletedAt.IsZero() {
		entry.CompletedAt = now
	}
	next, added := AddMilestone(rec, entry)
	if !added {
		svc.logger.Debug("milestone already completed",
			zap.String("progress_id", id),
			zap.String("milestone_id", entry.MilestoneID))
		return rec, false, nil
	}
	next.LastUpdatedAt = now
	if err := svc.records.Save(ctx, &next); err != nil {
		return model.PlantProgress{}, false, err
	}
	svc.logger.Info("milestone completed",
		zap.String("progress_id", id),
		zap.String("user_id", next.UserID),
		zap.String("milestone_id", entry.MilestoneID))

	refreshed, granted, err := svc.refreshLocked(ctx, id)
	if err != nil {
		return model.PlantProgress{}, true, err
	}
	ev := newEvent(EventMilestoneCompleted, &refreshed, now)
	ev.MilestoneID = entry.MilestoneID
	ev.Badges = granted
	svc.publish(ctx, ev)
	return refreshed, true, nil
}

// RefreshPercentage recomputes the percentage from the plan, grants any
// badges the rules now allow and saves once. It returns the saved record
// and the newly granted badges.
func (svc *Service) RefreshPercentage(ctx context.Context, id string) (model.PlantProgress, []string, error) {
	unlock, err := svc.lock(ctx, id)
	if err != nil {
		return model.PlantProgress{}, nil, err
	}
	defer unlock()

	rec, granted, err := svc.refreshLocked(ctx, id)
	if err != nil {
		return model.PlantProgress{}, nil, err
	}
	ev := newEvent(EventRefreshed, &rec, rec.LastUpdatedAt)
	ev.Badges = granted
	svc.publish(ctx, ev)
	return rec, granted, nil
}

// refreshLocked must be called with the record's lock held.
func (svc *Service) refreshLocked(ctx context.Context, id string) (model.PlantProgress, []string, error) {
	rec, err := svc.records.FindByID(ctx, id)
	if err != nil {
		return model.PlantProgress{}, nil, err
	}
	plan, err := svc.plans.FindByID(ctx, rec.PlantingPlanID)
	if err != nil {
		return model.PlantProgress{}, nil, err
	}
	next, granted := Recompute(rec, &plan, svc.rules)
	next.LastUpdatedAt = svc.now()
	if err := svc.records.Save(ctx, &next); err != nil {
		return model.PlantProgress{}, nil, err
	}
	svc.logGranted(&next, granted)
	return next, granted, nil
}

// AwardBadge adds badge to the record unless it is already present. The
// returned bool reports whether the badge was added.
func (svc *Service) AwardBadge(ctx context.Context, id, badge string) (model.PlantProgress, bool, error) {
	if err := validateBadge(badge); err != nil {
		return model.PlantProgress{}, false, err
	}

	unlock, err := svc.lock(ctx, id)
	if err != nil {
		return model.PlantProgress{}, false, err
	}
	defer unlock()

	rec, err := svc.records.FindByID(ctx, id)
	if err != nil {
		return model.PlantProgress{}, false, err
	}
	if rec.HasBadge(badge) {
		return rec, false, nil
	}
	now := svc.now()
	next := rec.Clone()
	next.AwardedBadges = append(next.AwardedBadges, badge)
	next.LastUpdatedAt = now
	if err := svc.records.Save(ctx, &next); err != nil {
		return model.PlantProgress{}, false, err
	}
	granted := []string{badge}
	svc.logGranted(&next, granted)
	ev := newEvent(EventBadgeAwarded, &next, now)
	ev.Badges = granted
	svc.publish(ctx, ev)
	return next, true, nil
}

// Like increments the record's like counter by one.
func (svc *Service) Like(ctx context.Context, id string) (model.PlantProgress, error) {
	unlock, err := svc.lock(ctx, id)
	if err != nil {
		return model.PlantProgress{}, err
	}
	defer unlock()

	rec, err := svc.records.FindByID(ctx, id)
	if err != nil {
		return model.PlantProgress{}, err
	}
	next := rec.Clone()
	next.Likes++
	if err := svc.records.Save(ctx, &next); err != nil {
		return model.PlantProgress{}, err
	}
	if svc.ranking != nil {
		if err := svc.ranking.Record(ctx, next.ID, next.Likes); err != nil {
			svc.logger.Warn("ranking update failed", zap.String("progress_id", id), zap.Error(err))
		}
	}
	svc.publish(ctx, newEvent(EventLiked, &next, svc.now()))
	return next, nil
}

func (svc *Service) logGranted(rec *model.PlantProgress, granted []string) {
	for _, b := range granted {
		svc.logger.Info("badge awarded",
			zap.String("progress_id", rec.ID),
			zap.String("user_id", rec.UserID),
			zap.String("badge", b),
			zap.Float64("percentage", rec.ProgressPercentage))
	}
}
