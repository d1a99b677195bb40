package user

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"assohub-backend/internal/domain"
	"assohub-backend/internal/pkg/constants"
	"assohub-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const userSessionsPrefix = "user_sessions:"

// Service holds DB and Redis for portal account operations.
type Service struct {
	DB  *gorm.DB
	Rdb *redis.Client
}

// CreateUserInput is the account-creation payload. Role defaults to member;
// staff roles are only assignable through UpdateUserRole.
type CreateUserInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Fullname string `json:"fullname"`
}

// CreateUser creates a portal account. Returns the created model (caller
// strips password_hash).
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	if in.Email == "" || !validation.IsValidEmail(in.Email) {
		return nil, errors.New("Invalid email format")
	}
	if in.Password == "" || !validation.IsValidPassword(in.Password) {
		return nil, errors.New("Invalid password format")
	}
	trimmed := strings.TrimSpace(in.Fullname)
	if trimmed == "" {
		return nil, errors.New("Full name is required and must be a non-empty string")
	}
	if !validation.IsValidFullname(trimmed) {
		return nil, errors.New("Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)")
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))

	var existing domain.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, errors.New("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 10)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Fullname:     titleCaseAndNormalize(trimmed),
		Role:         constants.Member,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser updates allowed fields: email, password, fullname, org_id.
func (s *Service) UpdateUser(ctx context.Context, userID string, fields map[string]interface{}) (*domain.User, error) {
	if userID == "" {
		return nil, errors.New("Missing user ID")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, errors.New("Invalid user ID format (must be a valid UUID)")
	}
	if len(fields) == 0 {
		return nil, errors.New("Missing update fields")
	}

	allowed := map[string]bool{
		"email": true, "password": true, "fullname": true, "org_id": true,
	}
	upd := make(map[string]interface{})
	for k, v := range fields {
		if !allowed[k] {
			continue
		}
		upd[k] = v
	}
	if len(upd) == 0 {
		return nil, errors.New("No valid update fields provided")
	}

	if e, ok := upd["email"].(string); ok && e != "" {
		if !validation.IsValidEmail(e) {
			return nil, errors.New("Invalid email format")
		}
		upd["email"] = strings.TrimSpace(strings.ToLower(e))
	}
	if p, ok := upd["password"].(string); ok && p != "" {
		if !validation.IsValidPassword(p) {
			return nil, errors.New("Invalid password format")
		}
		hash, _ := bcrypt.GenerateFromPassword([]byte(p), 10)
		upd["password_hash"] = string(hash)
		delete(upd, "password")
	}
	if fn, ok := upd["fullname"].(string); ok {
		if strings.TrimSpace(fn) == "" {
			return nil, errors.New("Full name must be a non-empty string")
		}
		trimmed := strings.TrimSpace(fn)
		if !validation.IsValidFullname(trimmed) {
			return nil, errors.New("Full name contains invalid characters")
		}
		upd["fullname"] = titleCaseAndNormalize(trimmed)
	}
	if oid, ok := upd["org_id"]; ok {
		if oid == nil {
			upd["org_id"] = nil
		} else if s, ok := oid.(string); ok && s != "" {
			parsed, err := uuid.Parse(s)
			if err != nil {
				return nil, errors.New("Invalid org_id")
			}
			upd["org_id"] = &parsed
		}
	}

	// Uniqueness: no other user (excluding this one) may have the new email
	if e, ok := upd["email"].(string); ok {
		var dup domain.User
		if err := s.DB.WithContext(ctx).Where("email = ? AND user_id != ?", e, userID).First(&dup).Error; err == nil {
			return nil, errors.New("Email already registered")
		}
	}

	result := s.DB.WithContext(ctx).Model(&domain.User{}).Where("user_id = ?", userID).Updates(upd)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, errors.New("User not found")
	}

	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ViewUser returns a user by ID.
func (s *Service) ViewUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, errors.New("Missing user ID")
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("User not found")
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUserRole changes a user's role and destroys their active sessions so
// the stale role cannot linger on an open session. Admin-only at the route
// level, enforced by the permission middleware.
func (s *Service) UpdateUserRole(ctx context.Context, targetUserID, targetRole string) (*domain.User, error) {
	if !constants.IsValidRole(targetRole) {
		return nil, errors.New("Invalid role")
	}
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", targetUserID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New("User not found")
		}
		return nil, err
	}
	u.Role = targetRole
	if err := s.DB.WithContext(ctx).Save(&u).Error; err != nil {
		return nil, err
	}
	s.destroyUserSessions(ctx, targetUserID)
	return &u, nil
}

// RemoveUserFromOrg detaches a user from their organization, demotes them to
// member, and destroys their sessions.
func (s *Service) RemoveUserFromOrg(ctx context.Context, targetUserID string) error {
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", targetUserID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New("User not found")
		}
		return err
	}
	if u.OrgID == nil {
		return errors.New("User is not attached to an organization")
	}
	u.OrgID = nil
	u.Role = constants.Member
	if err := s.DB.WithContext(ctx).Save(&u).Error; err != nil {
		return err
	}
	s.destroyUserSessions(ctx, targetUserID)
	return nil
}

// destroyUserSessions deletes every Redis session tracked for the user. Best
// effort: a Redis hiccup here must not fail the role change itself.
func (s *Service) destroyUserSessions(ctx context.Context, userID string) {
	if s.Rdb == nil {
		return
	}
	key := userSessionsPrefix + userID
	ids, err := s.Rdb.SMembers(ctx, key).Result()
	if err != nil {
		return
	}
	for _, sid := range ids {
		_ = s.Rdb.Del(ctx, "session:"+sid).Err()
	}
	_ = s.Rdb.Del(ctx, key).Err()
}

func titleCaseAndNormalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	runes := []rune(s)
	var b strings.Builder
	capitalize := true
	for _, r := range runes {
		if unicode.IsSpace(r) {
			if !capitalize {
				b.WriteRune(' ')
				capitalize = true
			}
			continue
		}
		if capitalize {
			b.WriteRune(unicode.ToUpper(r))
			capitalize = false
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
