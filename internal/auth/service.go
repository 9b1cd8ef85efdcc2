// Package auth は管理者のパスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/tipflix/internal/model"
	"github.com/hitoshi/tipflix/internal/repository"
)

// サインイン結果のラベル
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// dummyHash は存在しないメールアドレスでも照合時間を揃えるためのハッシュ。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tipflix-dummy-password"), bcrypt.DefaultCost)

// LoginObserver はサインイン結果の計測フック。
type LoginObserver interface {
	RecordAdminLogin(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は管理者認証に関するビジネスロジックを提供する。
type Service struct {
	adminRepo   repository.AdminUserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	observer    LoginObserver
	now         func() time.Time
}

// NewService はServiceを生成する。observerはnilでもよい。
func NewService(
	adminRepo repository.AdminUserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
	observer LoginObserver,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		adminRepo:   adminRepo,
		sessionRepo: sessionRepo,
		config:      config,
		observer:    observer,
		now:         time.Now,
	}
}

// SignIn はメールアドレスとパスワードを照合し、セッションを発行する。
// 認証に失敗した場合は原因を問わず同じ INVALID_CREDENTIALS エラーを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.record(LoginFailure)
		return nil, model.NewInvalidCredentialsError()
	}

	admin, err := s.adminRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}

	hash := dummyHash
	if admin != nil {
		hash = []byte(admin.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || admin == nil {
		s.record(LoginFailure)
		slog.Warn("admin sign-in rejected")
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, admin.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.record(LoginSuccess)
	slog.Info("admin signed in", slog.String("admin_id", admin.ID))
	return session, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("admin signed out")
	return nil
}

// CurrentAdmin はセッションから現在の管理者を取得する。
// セッションが無効な場合は UNAUTHORIZED エラーを返す。
func (s *Service) CurrentAdmin(ctx context.Context, sessionID string) (*model.AdminUser, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	admin, err := s.adminRepo.FindByID(ctx, session.AdminID)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil {
		return nil, model.NewUnauthorizedError()
	}

	return admin, nil
}

// CreateAdmin は管理者を作成する。同じメールアドレスの管理者が存在する場合はパスワードを更新する。
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (*model.AdminUser, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, model.NewValidationError("email", "is required")
	}
	if password == "" {
		return nil, model.NewValidationError("password", "is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, model.NewValidationError("password", "must be at most 72 bytes")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.AdminUser{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.adminRepo.Upsert(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to save admin: %w", err)
	}

	slog.Info("admin account saved", slog.String("admin_id", admin.ID))
	return admin, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, adminID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		AdminID:   adminID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) record(result string) {
	if s.observer != nil {
		s.observer.RecordAdminLogin(result)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
