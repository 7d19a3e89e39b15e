package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/sso"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindPrincipalByUsername(ctx context.Context, username string) (*models.Principal, error)
	Create(ctx context.Context, user *models.User, roleIDs, departmentIDs []int64) error
	AttachDepartment(ctx context.Context, userID, departmentID int64) error
}

type authRoleRepository interface {
	FindByName(ctx context.Context, name string) (*models.Role, error)
}

type authDepartmentRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Department, error)
}

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	Secret         string
	Expiration     time.Duration
	Issuer         string
	SSODefaultRole string
	SSOEmailDomain string
}

// AuthService provides authentication use cases: password login, token
// validation and single sign-on with just-in-time account provisioning.
type AuthService struct {
	users     authUserRepository
	roles     authRoleRepository
	depts     authDepartmentRepository
	audit     auditWriter
	provider  sso.IdentityProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance. The SSO provider may
// be nil when the gateway integration is disabled.
func NewAuthService(users authUserRepository, roles authRoleRepository, depts authDepartmentRepository, audit auditWriter, provider sso.IdentityProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		roles:     roles,
		depts:     depts,
		audit:     audit,
		provider:  provider,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Login authenticates a username/password pair and issues an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin("password")
	s.writeAudit(ctx, &user.ID, models.AuditActionLogin, "auth", nil, req.IP, req.UserAgent)
	return resp, nil
}

// SSOLogin exchanges a gateway artifact for a profile and signs the user
// in, creating the account on first sight and syncing the department link
// reported by the directory.
func (s *AuthService) SSOLogin(ctx context.Context, artifact, ip, userAgent string) (*models.LoginResponse, error) {
	if s.provider == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "single sign-on is not enabled")
	}
	if artifact == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing sso artifact")
	}

	profile, err := s.provider.GetUserProfile(ctx, artifact)
	if err != nil {
		s.logger.Warn("sso profile exchange failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "sso sign-in failed")
	}

	user, err := s.users.FindByUsername(ctx, profile.Account)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		user, err = s.provision(ctx, profile)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	default:
		s.syncDepartment(ctx, user.ID, profile.UnitCode)
	}

	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin("sso")
	s.writeAudit(ctx, &user.ID, models.AuditActionSSOLogin, "auth", nil, ip, userAgent)
	return resp, nil
}

// provision creates an account from a directory profile: default role by
// configured name, department link by reported unit code. Both lookups are
// soft failures; an account without them is still usable.
func (s *AuthService) provision(ctx context.Context, profile *sso.Profile) (*models.User, error) {
	email := fmt.Sprintf("%s@%s", profile.Account, s.config.SSOEmailDomain)
	user := &models.User{
		Username: profile.Account,
		FullName: profile.FullName,
		Email:    &email,
		IsActive: true,
	}

	var roleIDs []int64
	if s.config.SSODefaultRole != "" {
		role, err := s.roles.FindByName(ctx, s.config.SSODefaultRole)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("sso default role not found", zap.String("role", s.config.SSODefaultRole))
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve default role")
		default:
			roleIDs = append(roleIDs, role.ID)
		}
	}

	var departmentIDs []int64
	if profile.UnitCode != "" {
		dept, err := s.depts.FindByCode(ctx, profile.UnitCode)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("sso unit code has no matching department", zap.String("code", profile.UnitCode))
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve department")
		default:
			departmentIDs = append(departmentIDs, dept.ID)
		}
	}

	if err := s.users.Create(ctx, user, roleIDs, departmentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision account")
	}

	s.logger.Info("provisioned sso account",
		zap.String("username", user.Username),
		zap.String("unit_code", profile.UnitCode),
	)
	return user, nil
}

// syncDepartment links the reported unit to an existing account. Lookup
// misses are logged, not surfaced; sign-in must not fail over directory
// drift.
func (s *AuthService) syncDepartment(ctx context.Context, userID int64, unitCode string) {
	if unitCode == "" {
		return
	}
	dept, err := s.depts.FindByCode(ctx, unitCode)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("department lookup failed during sso sync", zap.Error(err))
		} else {
			s.logger.Warn("sso unit code has no matching department", zap.String("code", unitCode))
		}
		return
	}
	if err := s.users.AttachDepartment(ctx, userID, dept.ID); err != nil {
		s.logger.Warn("failed to sync sso department", zap.Error(err))
	}
}

// ResolvePrincipal loads the fully hydrated principal for a validated
// token subject.
func (s *AuthService) ResolvePrincipal(ctx context.Context, username string) (*models.Principal, error) {
	principal, err := s.users.FindPrincipalByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve principal")
	}
	if !principal.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}
	return principal, nil
}

// ValidateToken parses and verifies an access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func (s *AuthService) issue(user *models.User) (*models.LoginResponse, error) {
	now := time.Now().UTC()
	claims := models.JWTClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	return &models.LoginResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.config.Expiration.Seconds()),
		IssuedAt:    now,
		User: models.UserInfo{
			ID:       user.ID,
			Username: user.Username,
			FullName: user.FullName,
		},
	}, nil
}

func (s *AuthService) writeAudit(ctx context.Context, userID *int64, action, resource string, resourceID *string, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.Error(err))
	}
}
