package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/twgov-oa/question-tracker/internal/authz"
	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/repository"
	"github.com/twgov-oa/question-tracker/pkg/cache"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

const directoryCacheKey = "departments:directory"

type departmentRepository interface {
	List(ctx context.Context) ([]models.Department, error)
	ListBureaus(ctx context.Context) ([]models.Department, error)
	FindByID(ctx context.Context, id int64) (*models.Department, error)
	FindByCode(ctx context.Context, code string) (*models.Department, error)
	Create(ctx context.Context, dept *models.Department) error
	Update(ctx context.Context, dept *models.Department) error
	Delete(ctx context.Context, id int64) error
	DependentCounts(ctx context.Context, id int64) (*repository.DependentCounts, error)
}

// CreateDepartmentRequest carries input for creating a department.
type CreateDepartmentRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required,max=100"`
}

// UpdateDepartmentRequest carries input for renaming or reparenting a
// department. The code is immutable after creation.
type UpdateDepartmentRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	ParentID *int64 `json:"parent_id"`
}

// DepartmentService manages the department directory. The full directory
// is small and read on nearly every request for access scoping, so it is
// cached in Redis and invalidated on any mutation.
type DepartmentService struct {
	repo      departmentRepository
	cache     *cache.Cache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService constructs a DepartmentService. The cache and
// metrics may be nil; lookups then go straight to the database.
func NewDepartmentService(repo departmentRepository, directoryCache *cache.Cache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DepartmentService{repo: repo, cache: directoryCache, metrics: metrics, validator: validate, logger: logger}
}

// Directory returns the full department list, served from cache when warm.
func (s *DepartmentService) Directory(ctx context.Context) ([]models.Department, error) {
	if s.cache.Enabled() {
		start := time.Now()
		var cached []models.Department
		err := s.cache.GetJSON(ctx, directoryCacheKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("department directory cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
	}

	depts, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}

	if err := s.cache.SetJSON(ctx, directoryCacheKey, depts); err != nil {
		s.logger.Warn("department directory cache write failed", zap.Error(err))
	}
	return depts, nil
}

// Lookup builds an in-memory resolver over the cached directory for the
// authorization predicates.
func (s *DepartmentService) Lookup(ctx context.Context) (authz.DepartmentLookup, []models.Department, error) {
	depts, err := s.Directory(ctx)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]*models.Department, len(depts))
	for i := range depts {
		byID[depts[i].ID] = &depts[i]
	}
	return func(id int64) *models.Department { return byID[id] }, depts, nil
}

// ListBureaus returns bureau-level departments, used to populate the
// report/answer pickers on the question form.
func (s *DepartmentService) ListBureaus(ctx context.Context) ([]models.Department, error) {
	depts, err := s.repo.ListBureaus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bureaus")
	}
	return depts, nil
}

// Get returns one department.
func (s *DepartmentService) Get(ctx context.Context, id int64) (*models.Department, error) {
	dept, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch department")
	}
	return dept, nil
}

// Create adds a department. Section codes require their implied bureau to
// exist already; the section is parented to it.
func (s *DepartmentService) Create(ctx context.Context, req CreateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	if err := models.ValidateDepartmentCode(req.Code); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("department code %s already exists", req.Code))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department code")
	}

	dept := &models.Department{Code: req.Code, Name: req.Name}

	if !dept.IsBureau() {
		bureau, err := s.repo.FindByCode(ctx, models.ImpliedBureauCode(req.Code))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("bureau %s must exist before adding its sections", models.ImpliedBureauCode(req.Code)))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve bureau")
		}
		dept.ParentID = &bureau.ID
	}

	if err := s.repo.Create(ctx, dept); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}

	s.invalidate(ctx)
	s.logger.Info("department created", zap.String("code", dept.Code), zap.Int64("id", dept.ID))
	return dept, nil
}

// Update renames or reparents a department.
func (s *DepartmentService) Update(ctx context.Context, id int64, req UpdateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	dept, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		if *req.ParentID == id {
			return nil, appErrors.Clone(appErrors.ErrValidation, "department cannot be its own parent")
		}
		if _, err := s.Get(ctx, *req.ParentID); err != nil {
			return nil, err
		}
	}

	dept.Name = req.Name
	dept.ParentID = req.ParentID
	if err := s.repo.Update(ctx, dept); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}

	s.invalidate(ctx)
	return dept, nil
}

// Delete removes a department once nothing references it: no child
// departments, no question links, no user memberships.
func (s *DepartmentService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	counts, err := s.repo.DependentCounts(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department references")
	}
	if counts.HasDependents() {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf(
			"department is still referenced: %d child departments, %d question links, %d user memberships",
			counts.Children, counts.QuestionLinks, counts.UserLinks,
		))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete department")
	}

	s.invalidate(ctx)
	s.logger.Info("department deleted", zap.Int64("id", id))
	return nil
}

func (s *DepartmentService) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, directoryCacheKey); err != nil {
		s.logger.Warn("department directory cache invalidation failed", zap.Error(err))
	}
}
