package core

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"plancore/internal/blob"
	"plancore/pkg/domain"
)

// Service is the application facade over the persistent store. All commands
// run inside a store transaction and re-validate references against the
// transactional snapshot, so last-write-wins races still converge on a
// consistent graph.
type Service struct {
	store   domain.PersistentStore
	blobs   blob.Store
	gate    GatePolicy
	logger  *zap.Logger
	metrics MetricsRecorder
	nowFn   func() time.Time
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithBlobStore wires attachment payload storage.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// WithGatePolicy sets how incomplete dependencies gate task completion.
func WithGatePolicy(p GatePolicy) Option {
	return func(s *Service) {
		if p.Valid() {
			s.gate = p
		}
	}
}

// WithLogger replaces the default nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder wires operation telemetry.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNowFunc overrides the clock, used by tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs the service around a persistent store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		blobs:   blob.NewMemory(),
		gate:    GatePolicyAdvisory,
		logger:  zap.NewNop(),
		metrics: noopMetricsRecorder{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GatePolicy returns the configured dependency gate policy.
func (s *Service) GatePolicy() GatePolicy { return s.gate }

// Store exposes the underlying persistent store for read-path composition.
func (s *Service) Store() domain.PersistentStore { return s.store }

func (s *Service) observe(op string, start time.Time, err error, res Result) {
	elapsed := s.nowFn().Sub(start)
	s.metrics.ObserveOperation(op, err, elapsed)
	warnings := res.Warnings()
	s.metrics.ObserveRuleWarnings(op, len(warnings))
	if err != nil {
		s.logger.Warn("operation failed", zap.String("op", op), zap.Error(err))
		return
	}
	for _, w := range warnings {
		s.logger.Warn("rule warning",
			zap.String("op", op),
			zap.String("rule", w.Rule),
			zap.String("entity_id", w.EntityID),
			zap.String("message", w.Message))
	}
}

func validProjectStatus(st domain.ProjectStatus) bool {
	switch st {
	case domain.ProjectStatusPlanning, domain.ProjectStatusInProgress, domain.ProjectStatusInReview,
		domain.ProjectStatusDone, domain.ProjectStatusPaused, domain.ProjectStatusCancelled:
		return true
	}
	return false
}

func validTaskStatus(st domain.TaskStatus) bool {
	switch st {
	case domain.TaskStatusPending, domain.TaskStatusInProgress, domain.TaskStatusCompleted, domain.TaskStatusCancelled:
		return true
	}
	return false
}

func validPriority(p domain.Priority) bool {
	switch p {
	case domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh, domain.PriorityUrgent:
		return true
	}
	return false
}

// CreateProject validates input and stores a new project.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (Project, Result, error) {
	start := s.nowFn()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		err := domain.ValidationError{Field: "name", Reason: "required"}
		s.observe("project.create", start, err, Result{})
		return Project{}, Result{}, err
	}
	if in.Status == "" {
		in.Status = domain.ProjectStatusPlanning
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityNormal
	}
	if !validProjectStatus(in.Status) {
		err := domain.ValidationError{Field: "status", Reason: "unknown status " + string(in.Status)}
		s.observe("project.create", start, err, Result{})
		return Project{}, Result{}, err
	}
	if !validPriority(in.Priority) {
		err := domain.ValidationError{Field: "priority", Reason: "unknown priority " + string(in.Priority)}
		s.observe("project.create", start, err, Result{})
		return Project{}, Result{}, err
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		err := domain.ValidationError{Field: "end_date", Reason: "end date precedes start date"}
		s.observe("project.create", start, err, Result{})
		return Project{}, Result{}, err
	}
	if !in.CreatedBy.IsZero() && !in.CreatedBy.Valid() {
		err := domain.ValidationError{Field: "created_by", Reason: "unknown party kind"}
		s.observe("project.create", start, err, Result{})
		return Project{}, Result{}, err
	}

	var created Project
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		created, txErr = tx.CreateProject(Project{
			Name:        name,
			Description: in.Description,
			UnitID:      in.UnitID,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			Status:      in.Status,
			Priority:    in.Priority,
			Budget:      in.Budget,
			CreatedBy:   in.CreatedBy,
		})
		return txErr
	})
	s.observe("project.create", start, err, res)
	if err != nil {
		return Project{}, res, err
	}
	s.logger.Info("project created", zap.String("project_id", created.ID), zap.String("name", created.Name))
	return created, res, nil
}

// UpdateProject applies a patch to an existing project.
func (s *Service) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (Project, Result, error) {
	start := s.nowFn()
	var updated Project
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateProject(id, func(p *Project) error {
			if patch.Name != nil {
				name := strings.TrimSpace(*patch.Name)
				if name == "" {
					return domain.ValidationError{Field: "name", Reason: "required"}
				}
				p.Name = name
			}
			if patch.Description != nil {
				p.Description = *patch.Description
			}
			if patch.ClearUnitID {
				p.UnitID = nil
			} else if patch.UnitID != nil {
				p.UnitID = patch.UnitID
			}
			if patch.ClearStartDate {
				p.StartDate = nil
			} else if patch.StartDate != nil {
				p.StartDate = patch.StartDate
			}
			if patch.ClearEndDate {
				p.EndDate = nil
			} else if patch.EndDate != nil {
				p.EndDate = patch.EndDate
			}
			if patch.Status != nil {
				if !validProjectStatus(*patch.Status) {
					return domain.ValidationError{Field: "status", Reason: "unknown status " + string(*patch.Status)}
				}
				p.Status = *patch.Status
			}
			if patch.Priority != nil {
				if !validPriority(*patch.Priority) {
					return domain.ValidationError{Field: "priority", Reason: "unknown priority " + string(*patch.Priority)}
				}
				p.Priority = *patch.Priority
			}
			if patch.ClearBudget {
				p.Budget = nil
			} else if patch.Budget != nil {
				p.Budget = patch.Budget
			}
			if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
				return domain.ValidationError{Field: "end_date", Reason: "end date precedes start date"}
			}
			return nil
		})
		return txErr
	})
	s.observe("project.update", start, err, res)
	if err != nil {
		return Project{}, res, err
	}
	return updated, res, nil
}

// ArchiveProject flips the archived flag. Archived projects stay readable
// but drop out of active listings and statistics.
func (s *Service) ArchiveProject(ctx context.Context, id string, archived bool) (Project, Result, error) {
	start := s.nowFn()
	var updated Project
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateProject(id, func(p *Project) error {
			p.Archived = archived
			return nil
		})
		return txErr
	})
	s.observe("project.archive", start, err, res)
	if err != nil {
		return Project{}, res, err
	}
	return updated, res, nil
}

// DeleteProject removes a project with full cascade, then releases the blob
// payloads of every attachment the project owned.
func (s *Service) DeleteProject(ctx context.Context, id string) (Result, error) {
	start := s.nowFn()
	var keys []string
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		for _, t := range view.ListProjectTasks(id) {
			for _, a := range view.ListTaskAttachments(t.ID) {
				keys = append(keys, a.StorageKey)
			}
		}
		return tx.DeleteProject(id)
	})
	s.observe("project.delete", start, err, res)
	if err != nil {
		return res, err
	}
	s.releaseBlobs(ctx, keys)
	s.logger.Info("project deleted", zap.String("project_id", id), zap.Int("attachments_released", len(keys)))
	return res, nil
}

// releaseBlobs best-effort deletes payloads after a commit. Failures leave
// orphaned blobs, which are logged with their keys for reconciliation.
func (s *Service) releaseBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("orphaned blob payload", zap.String("storage_key", key), zap.Error(err))
		}
	}
}

// CreatePhase appends a phase to a project. A negative order requests the
// next free slot; an explicit duplicate order is a conflict.
func (s *Service) CreatePhase(ctx context.Context, projectID string, in PhaseInput) (Phase, Result, error) {
	start := s.nowFn()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		err := domain.ValidationError{Field: "name", Reason: "required"}
		s.observe("phase.create", start, err, Result{})
		return Phase{}, Result{}, err
	}
	var created Phase
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		if _, ok := view.FindProject(projectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		siblings := view.ListProjectPhases(projectID)
		order := in.Order
		if order < 0 {
			order = 0
			for _, ph := range siblings {
				if ph.Order >= order {
					order = ph.Order + 1
				}
			}
		} else {
			for _, ph := range siblings {
				if ph.Order == order {
					return domain.ConflictError{Reason: "phase order " + strconv.Itoa(order) + " already used in project " + projectID}
				}
			}
		}
		var txErr error
		created, txErr = tx.CreatePhase(Phase{
			ProjectID: projectID,
			Name:      name,
			Order:     order,
			StartDate: in.StartDate,
			EndDate:   in.EndDate,
		})
		return txErr
	})
	s.observe("phase.create", start, err, res)
	if err != nil {
		return Phase{}, res, err
	}
	return created, res, nil
}

// UpdatePhase applies a patch to an existing phase.
func (s *Service) UpdatePhase(ctx context.Context, id string, patch PhasePatch) (Phase, Result, error) {
	start := s.nowFn()
	var updated Phase
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		current, ok := view.FindPhase(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityPhase, ID: id}
		}
		if patch.Order != nil && *patch.Order != current.Order {
			for _, ph := range view.ListProjectPhases(current.ProjectID) {
				if ph.ID != id && ph.Order == *patch.Order {
					return domain.ConflictError{Reason: "phase order " + strconv.Itoa(*patch.Order) + " already used in project " + current.ProjectID}
				}
			}
		}
		var txErr error
		updated, txErr = tx.UpdatePhase(id, func(ph *Phase) error {
			if patch.Name != nil {
				name := strings.TrimSpace(*patch.Name)
				if name == "" {
					return domain.ValidationError{Field: "name", Reason: "required"}
				}
				ph.Name = name
			}
			if patch.Order != nil {
				if *patch.Order < 0 {
					return domain.ValidationError{Field: "order", Reason: "must be non-negative"}
				}
				ph.Order = *patch.Order
			}
			if patch.ClearStartDate {
				ph.StartDate = nil
			} else if patch.StartDate != nil {
				ph.StartDate = patch.StartDate
			}
			if patch.ClearEndDate {
				ph.EndDate = nil
			} else if patch.EndDate != nil {
				ph.EndDate = patch.EndDate
			}
			return nil
		})
		return txErr
	})
	s.observe("phase.update", start, err, res)
	if err != nil {
		return Phase{}, res, err
	}
	return updated, res, nil
}

// DeletePhase removes a phase; its tasks are detached, not deleted.
func (s *Service) DeletePhase(ctx context.Context, id string) (Result, error) {
	start := s.nowFn()
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeletePhase(id)
	})
	s.observe("phase.delete", start, err, res)
	return res, err
}

// AddTeamMember registers a person on a project team. The same person may
// hold several role entries.
func (s *Service) AddTeamMember(ctx context.Context, projectID string, person PartyRef, role string) (TeamMembership, Result, error) {
	start := s.nowFn()
	if !person.Valid() {
		err := domain.ValidationError{Field: "person", Reason: "unknown party kind or missing id"}
		s.observe("team.add", start, err, Result{})
		return TeamMembership{}, Result{}, err
	}
	var created TeamMembership
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.Snapshot().FindProject(projectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		var txErr error
		created, txErr = tx.CreateTeamMembership(TeamMembership{
			ProjectID: projectID,
			Person:    person,
			Role:      strings.TrimSpace(role),
		})
		return txErr
	})
	s.observe("team.add", start, err, res)
	if err != nil {
		return TeamMembership{}, res, err
	}
	return created, res, nil
}

// RemoveTeamMember deletes one membership record by id.
func (s *Service) RemoveTeamMember(ctx context.Context, membershipID string) (Result, error) {
	start := s.nowFn()
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteTeamMembership(membershipID)
	})
	s.observe("team.remove", start, err, res)
	return res, err
}

