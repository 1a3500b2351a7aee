package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edumanage/academy-api/internal/models"
	"github.com/edumanage/academy-api/internal/scope"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type eventRepository interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	Create(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

// CreateEventRequest announces a branch event.
type CreateEventRequest struct {
	BranchID    string    `json:"branch_id"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description" validate:"required"`
	EventDate   time.Time `json:"event_date" validate:"required"`
}

// EventService manages branch events. Creating one broadcasts a
// best-effort announcement to the branch's students.
type EventService struct {
	repo      eventRepository
	notifier  *NotificationService
	resolver  *scope.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs EventService.
func NewEventService(repo eventRepository, notifier *NotificationService, resolver *scope.Resolver, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		repo:      repo,
		notifier:  notifier,
		resolver:  resolver,
		validator: validate,
		logger:    logger,
	}
}

// List returns events visible to the actor, soonest first.
func (s *EventService) List(ctx context.Context, actor scope.Actor, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceEvents, scope.ActionRead, scope.Filters{BranchID: filter.BranchID})
	if err != nil {
		return nil, nil, err
	}
	filter.BranchID = scoped.BranchID

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, &models.Pagination{Skip: filter.Skip, Limit: filter.Limit, Total: total}, nil
}

// Get returns one event the actor is allowed to see.
func (s *EventService) Get(ctx context.Context, actor scope.Actor, id string) (*models.Event, error) {
	event, err := s.findEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceEvents, scope.ActionRead, scope.Filters{BranchID: event.BranchID}); err != nil {
		return nil, err
	}
	return event, nil
}

// Create announces an event and queues the student broadcast. The
// broadcast never fails the creation.
func (s *EventService) Create(ctx context.Context, actor scope.Actor, req CreateEventRequest) (*models.Event, error) {
	scoped, err := s.resolver.Resolve(actor, scope.ResourceEvents, scope.ActionCreate, scope.Filters{BranchID: req.BranchID})
	if err != nil {
		return nil, err
	}
	if scoped.BranchID != "" {
		req.BranchID = scoped.BranchID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if req.BranchID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "branch_id is required")
	}

	event := &models.Event{
		BranchID:    req.BranchID,
		Title:       req.Title,
		Description: req.Description,
		EventDate:   req.EventDate,
		CreatedBy:   actor.ID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	if s.notifier != nil {
		s.notifier.NotifyBranchRole(ctx, event.BranchID, models.RoleStudent,
			fmt.Sprintf("New event: %s on %s. %s", event.Title, event.EventDate.Format("02 Jan 2006"), event.Description))
	}
	return event, nil
}

// Delete removes an event.
func (s *EventService) Delete(ctx context.Context, actor scope.Actor, id string) error {
	event, err := s.findEvent(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.resolver.Resolve(actor, scope.ResourceEvents, scope.ActionDelete, scope.Filters{BranchID: event.BranchID}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	return nil
}

func (s *EventService) findEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}
