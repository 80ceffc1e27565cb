package users

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidCredentials indicates a name/password pair that does not match any account.
var ErrInvalidCredentials = errors.New("users: invalid credentials")

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opRegister      = "users.register"
	opAuthenticate  = "users.authenticate"
	opGet           = "users.get"
	opLoadPrincipal = "users.load_principal"
	opDisplayNames  = "users.display_names"
	opUpdateProfile = "users.update_profile"
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages accounts, credentials and profiles.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name            string
	Password        string
	ConfirmPassword string
}

// Register creates an account at the default privilege level.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	name := normalize(input.Name)
	if err := validateName(name); err != nil {
		return User{}, err
	}
	if input.Password == "" {
		return User{}, access.Invalid("password is required")
	}
	if input.Password != input.ConfirmPassword {
		return User{}, access.Invalid("passwords do not match")
	}

	taken, err := s.nameTaken(ctx, name, 0)
	if err != nil {
		s.logError(opRegister, "name_lookup_failed", err, zap.String("name", name))
		return User{}, access.NewServiceError(opRegister, "name_lookup_failed", err)
	}
	if taken {
		return User{}, access.Invalid("name already exists")
	}

	hashed, err := auth.HashPassword(input.Password)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, access.NewServiceError(opRegister, "hash_failed", err)
	}

	now := s.now().UTC()
	user := User{
		Name:           name,
		PasswordHash:   hashed,
		PrivilegeLevel: defaultLevel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.logError(opRegister, "insert_failed", err, zap.String("name", name))
		return User{}, access.NewServiceError(opRegister, "insert_failed", err)
	}
	return user, nil
}

// Authenticate returns the account matching name and password.
func (s *Service) Authenticate(ctx context.Context, name, password string) (User, error) {
	name = normalize(name)
	if name == "" || password == "" {
		return User{}, access.Invalid("name and password are required")
	}

	var user User
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logError(opAuthenticate, "query_failed", err, zap.String("name", name))
		return User{}, access.NewServiceError(opAuthenticate, "query_failed", err)
	}

	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logError(opAuthenticate, "verify_failed", err, zap.Int64("user_id", user.ID))
		}
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, access.NewServiceError(opGet, "not_found", access.ErrAuthOrNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Int64("user_id", userID))
		return User{}, access.NewServiceError(opGet, "query_failed", err)
	}
	return user, nil
}

// LoadPrincipal materializes the principal for a token subject. The boolean is false
// when the account no longer exists, in which case the request is treated as anonymous.
func (s *Service) LoadPrincipal(ctx context.Context, subject int64) (access.Principal, bool, error) {
	if subject <= 0 {
		return access.Principal{}, false, nil
	}
	var user User
	err := s.db.WithContext(ctx).
		Select("id", "privilege_level").
		Where("id = ?", subject).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access.Principal{}, false, nil
	}
	if err != nil {
		s.logError(opLoadPrincipal, "query_failed", err, zap.Int64("user_id", subject))
		return access.Principal{}, false, access.NewServiceError(opLoadPrincipal, "query_failed", err)
	}
	return access.Principal{ID: user.ID, PrivilegeLevel: user.PrivilegeLevel}, true, nil
}

// DisplayNames maps each requested id that exists to its display name.
func (s *Service) DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var rows []User
	if err := s.db.WithContext(ctx).
		Select("id", "name").
		Where("id IN ?", userIDs).
		Find(&rows).Error; err != nil {
		s.logError(opDisplayNames, "query_failed", err)
		return nil, access.NewServiceError(opDisplayNames, "query_failed", err)
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

// ProfileInput carries editable profile fields.
type ProfileInput struct {
	Name      string
	Email     string
	AvatarURL string
}

// UpdateProfile rewrites the caller's own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, principal access.Principal, input ProfileInput) (User, error) {
	name := normalize(input.Name)
	if err := validateName(name); err != nil {
		return User{}, err
	}
	email := normalize(input.Email)
	if len(email) > maxEmailLength {
		return User{}, access.Invalid("email is too long")
	}
	avatar := normalize(input.AvatarURL)
	if len(avatar) > maxAvatarLength {
		return User{}, access.Invalid("avatar url is too long")
	}

	taken, err := s.nameTaken(ctx, name, principal.ID)
	if err != nil {
		s.logError(opUpdateProfile, "name_lookup_failed", err, zap.Int64("user_id", principal.ID))
		return User{}, access.NewServiceError(opUpdateProfile, "name_lookup_failed", err)
	}
	if taken {
		return User{}, access.Invalid("name already exists")
	}

	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", principal.ID).
		Updates(map[string]interface{}{
			"name":       name,
			"email":      email,
			"avatar_url": avatar,
			"updated_at": s.now().UTC(),
		})
	if result.Error != nil {
		s.logError(opUpdateProfile, "update_failed", result.Error, zap.Int64("user_id", principal.ID))
		return User{}, access.NewServiceError(opUpdateProfile, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, access.NewServiceError(opUpdateProfile, "not_found", access.ErrAuthOrNotFound)
	}
	return s.Get(ctx, principal.ID)
}

func (s *Service) nameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&User{}).Where("name = ?", name)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func validateName(name string) error {
	if name == "" {
		return access.Invalid("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return access.Invalid("name is too long")
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
