package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/twgov-oa/question-tracker/internal/models"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

type userRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindPrincipalByID(ctx context.Context, id int64) (*models.Principal, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User, roleIDs, departmentIDs []int64) error
	Update(ctx context.Context, user *models.User, roleIDs, departmentIDs []int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
	Delete(ctx context.Context, id int64) error
}

// CreateUserRequest carries input for creating an account.
type CreateUserRequest struct {
	Username      string  `json:"username" validate:"required,min=3,max=50"`
	FullName      string  `json:"full_name" validate:"required,max=100"`
	Password      string  `json:"password" validate:"required,min=8"`
	Email         *string `json:"email" validate:"omitempty,email"`
	IsActive      bool    `json:"is_active"`
	RoleIDs       []int64 `json:"role_ids"`
	DepartmentIDs []int64 `json:"department_ids"`
}

// UpdateUserRequest carries input for editing an account. Membership sets
// replace the existing links wholesale.
type UpdateUserRequest struct {
	FullName      string  `json:"full_name" validate:"required,max=100"`
	Email         *string `json:"email" validate:"omitempty,email"`
	IsActive      bool    `json:"is_active"`
	RoleIDs       []int64 `json:"role_ids"`
	DepartmentIDs []int64 `json:"department_ids"`
}

// ChangePasswordRequest carries a password reset performed by an admin.
type ChangePasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// UserService manages accounts and their role and department memberships.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns users matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns an account with its memberships resolved.
func (s *UserService) Get(ctx context.Context, id int64) (*models.Principal, error) {
	principal, err := s.repo.FindPrincipalByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	return principal, nil
}

// Create adds an account with a bcrypt-hashed password.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	if _, err := s.repo.FindByUsername(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("username %s already exists", req.Username))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		Email:        req.Email,
		IsActive:     req.IsActive,
	}
	if err := s.repo.Create(ctx, user, req.RoleIDs, req.DepartmentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created", zap.String("username", user.Username), zap.Int64("id", user.ID))
	return user, nil
}

// Update edits an account and replaces its memberships.
func (s *UserService) Update(ctx context.Context, id int64, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	user.FullName = req.FullName
	user.Email = req.Email
	user.IsActive = req.IsActive
	if err := s.repo.Update(ctx, user, req.RoleIDs, req.DepartmentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// ChangePassword resets an account's password.
func (s *UserService) ChangePassword(ctx context.Context, id int64, req ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, id, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	return nil
}

// Delete removes an account and its membership links.
func (s *UserService) Delete(ctx context.Context, id int64, actorID int64) error {
	if id == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.logger.Info("user deleted", zap.Int64("id", id), zap.Int64("actor_id", actorID))
	return nil
}
