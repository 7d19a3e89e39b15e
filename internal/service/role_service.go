package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/twgov-oa/question-tracker/internal/models"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

type roleRepository interface {
	List(ctx context.Context) ([]models.Role, error)
	FindByID(ctx context.Context, id int64) (*models.Role, error)
	FindByName(ctx context.Context, name string) (*models.Role, error)
	Create(ctx context.Context, role *models.Role) error
	Update(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, id int64) error
	CountUsers(ctx context.Context, roleID int64) (int, error)
}

// RoleRequest carries input for creating or updating a role.
type RoleRequest struct {
	Name        string   `json:"name" validate:"required,max=50"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions"`
}

// RoleService manages roles and their permission sets. Permissions are a
// closed catalog; unknown names are rejected rather than stored.
type RoleService struct {
	repo      roleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(repo roleRepository, validate *validator.Validate, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RoleService{repo: repo, validator: validate, logger: logger}
}

// List returns all roles.
func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	roles, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	return roles, nil
}

// Get returns one role.
func (s *RoleService) Get(ctx context.Context, id int64) (*models.Role, error) {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch role")
	}
	return role, nil
}

// Capabilities returns the full permission catalog for the role form.
func (s *RoleService) Capabilities() []models.Capability {
	return models.AllCapabilities
}

// Create adds a role.
func (s *RoleService) Create(ctx context.Context, req RoleRequest) (*models.Role, error) {
	perms, err := s.parseRequest(&req)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("role %s already exists", req.Name))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check role name")
	}

	role := &models.Role{Name: req.Name, Description: req.Description, Permissions: perms}
	if err := s.repo.Create(ctx, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role")
	}

	s.logger.Info("role created", zap.String("name", role.Name), zap.Int64("id", role.ID))
	return role, nil
}

// Update modifies a role's name, description and permissions.
func (s *RoleService) Update(ctx context.Context, id int64, req RoleRequest) (*models.Role, error) {
	perms, err := s.parseRequest(&req)
	if err != nil {
		return nil, err
	}

	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindByName(ctx, req.Name); err == nil && existing.ID != id {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("role %s already exists", req.Name))
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check role name")
	}

	role.Name = req.Name
	role.Description = req.Description
	role.Permissions = perms
	if err := s.repo.Update(ctx, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	return role, nil
}

// Delete removes a role, refused while any user still holds it.
func (s *RoleService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check role references")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("role is still assigned to %d users", count))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete role")
	}

	s.logger.Info("role deleted", zap.Int64("id", id))
	return nil
}

func (s *RoleService) parseRequest(req *RoleRequest) (models.PermissionSet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	perms := make(models.PermissionSet, 0, len(req.Permissions))
	for _, name := range req.Permissions {
		capability := models.Capability(name)
		if !capability.IsValid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown permission %q", name))
		}
		if !perms.Contains(capability) {
			perms = append(perms, capability)
		}
	}
	return perms, nil
}
