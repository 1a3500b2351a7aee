package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
	"github.com/edumanage/academy-api/pkg/jobs"
)

type activityRepository interface {
	Create(ctx context.Context, log *models.ActivityLog) error
	List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, int, error)
}

// ActivityService appends audit records through a background queue so
// audit writes never block or fail the operation that produced them. It
// also implements scope.DeniedRecorder.
type ActivityService struct {
	repo   activityRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewActivityService constructs the audit trail service. Call Start before
// recording.
func NewActivityService(repo activityRepository, logger *zap.Logger, queueCfg jobs.QueueConfig) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ActivityService{repo: repo, logger: logger}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("activity", s.handleJob, queueCfg)
	return s
}

// Start spins up the append workers.
func (s *ActivityService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *ActivityService) Stop() {
	s.queue.Stop()
}

func (s *ActivityService) handleJob(ctx context.Context, job jobs.Job) error {
	log, ok := job.Payload.(*models.ActivityLog)
	if !ok {
		s.logger.Warn("activity job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Create(ctx, log)
}

// Record appends an audit entry without request metadata.
func (s *ActivityService) Record(userID *string, action, resource string, resourceID *string, details map[string]string) {
	s.RecordWithRequest(userID, action, resource, resourceID, details, "", "")
}

// RecordWithRequest appends an audit entry carrying request origin info.
// Fire-and-forget: a full queue drops the entry with a log line.
func (s *ActivityService) RecordWithRequest(userID *string, action, resource string, resourceID *string, details map[string]string, ip, userAgent string) {
	log := &models.ActivityLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			log.Details = raw
		}
	}
	s.queue.TryEnqueue(jobs.Job{ID: log.ID, Type: action, Payload: log})
}

// ScopeDenied records an authorization failure. Implements
// scope.DeniedRecorder.
func (s *ActivityService) ScopeDenied(actor scope.Actor, resource scope.Resource, action scope.Action) {
	details := map[string]string{
		"role":   string(actor.Role),
		"action": string(action),
	}
	if actor.BranchID != nil {
		details["branch_id"] = *actor.BranchID
	}
	actorID := actor.ID
	s.Record(&actorID, models.ActivityScopeDenied, string(resource), nil, details)
}

// List returns audit records; only super admins reach this path.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, *models.Pagination, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity logs")
	}
	return logs, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}
