package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/tipflix/internal/model"
	"github.com/hitoshi/tipflix/internal/repository"
)

// --- モック定義 ---

type mockAdminRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.AdminUser, error)
	findByIDFn    func(ctx context.Context, id string) (*model.AdminUser, error)
	upsertFn      func(ctx context.Context, user *model.AdminUser) error
}

func (m *mockAdminRepo) FindByEmail(ctx context.Context, email string) (*model.AdminUser, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAdminRepo) FindByID(ctx context.Context, id string) (*model.AdminUser, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAdminRepo) Upsert(ctx context.Context, user *model.AdminUser) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, user)
	}
	return nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockLoginObserver struct {
	results []string
}

func (m *mockLoginObserver) RecordAdminLogin(result string) {
	m.results = append(m.results, result)
}

// compile-time interface checks
var (
	_ repository.AdminUserRepository = (*mockAdminRepo)(nil)
	_ repository.SessionRepository   = (*mockSessionRepo)(nil)
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(h)
}

func newTestService(adminRepo *mockAdminRepo, sessionRepo *mockSessionRepo, observer LoginObserver) *Service {
	return NewService(adminRepo, sessionRepo, ServiceConfig{SessionMaxAge: 3600, BcryptCost: bcrypt.MinCost}, observer)
}

func assertInvalidCredentials(t *testing.T, err error) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
	if apiErr.Message != "Invalid credentials. Access denied." {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

// --- テスト ---

func TestSignIn_ValidCredentials_CreatesSession(t *testing.T) {
	admin := &model.AdminUser{ID: "admin-1", Email: "ops@example.com", PasswordHash: hashPassword(t, "s3cret!")}

	var lookedUp string
	var saved *model.Session
	adminRepo := &mockAdminRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.AdminUser, error) {
			lookedUp = email
			return admin, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(_ context.Context, session *model.Session) error {
			saved = session
			return nil
		},
	}
	observer := &mockLoginObserver{}
	svc := newTestService(adminRepo, sessionRepo, observer)

	session, err := svc.SignIn(context.Background(), "  Ops@Example.com ", "s3cret!")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	if lookedUp != "ops@example.com" {
		t.Errorf("email looked up = %q, want normalized", lookedUp)
	}
	if session.AdminID != "admin-1" {
		t.Errorf("AdminID = %q", session.AdminID)
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if saved != session {
		t.Error("session was not persisted")
	}
	if got := session.ExpiresAt.Sub(session.CreatedAt); got != time.Hour {
		t.Errorf("session lifetime = %v, want 1h", got)
	}
	if len(observer.results) != 1 || observer.results[0] != LoginSuccess {
		t.Errorf("observer = %v", observer.results)
	}
}

func TestSignIn_FailuresAreIndistinguishable(t *testing.T) {
	admin := &model.AdminUser{ID: "admin-1", Email: "ops@example.com", PasswordHash: hashPassword(t, "s3cret!")}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ops@example.com", "wrong"},
		{"unknown email", "nobody@example.com", "s3cret!"},
		{"empty email", "", "s3cret!"},
		{"empty password", "ops@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adminRepo := &mockAdminRepo{
				findByEmailFn: func(_ context.Context, email string) (*model.AdminUser, error) {
					if email == admin.Email {
						return admin, nil
					}
					return nil, nil
				},
			}
			sessionRepo := &mockSessionRepo{
				createFn: func(context.Context, *model.Session) error {
					t.Error("session must not be created on failure")
					return nil
				},
			}
			observer := &mockLoginObserver{}
			svc := newTestService(adminRepo, sessionRepo, observer)

			session, err := svc.SignIn(context.Background(), tt.email, tt.password)
			if session != nil {
				t.Error("expected nil session")
			}
			assertInvalidCredentials(t, err)
			if len(observer.results) != 1 || observer.results[0] != LoginFailure {
				t.Errorf("observer = %v", observer.results)
			}
		})
	}
}

func TestSignIn_RepositoryError_IsNotCredentialError(t *testing.T) {
	adminRepo := &mockAdminRepo{
		findByEmailFn: func(context.Context, string) (*model.AdminUser, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(adminRepo, &mockSessionRepo{}, nil)

	_, err := svc.SignIn(context.Background(), "ops@example.com", "pw")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("repository failure must not be reported as %s", apiErr.Code)
	}
}

func TestSignOut_DeletesSession(t *testing.T) {
	var deleted string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newTestService(&mockAdminRepo{}, sessionRepo, nil)

	if err := svc.SignOut(context.Background(), "sess-1"); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if deleted != "sess-1" {
		t.Errorf("deleted = %q", deleted)
	}

	if err := svc.SignOut(context.Background(), ""); err == nil {
		t.Error("expected error for empty session ID")
	}
}

func TestCurrentAdmin(t *testing.T) {
	admin := &model.AdminUser{ID: "admin-1", Email: "ops@example.com"}
	adminRepo := &mockAdminRepo{
		findByIDFn: func(_ context.Context, id string) (*model.AdminUser, error) {
			if id == admin.ID {
				return admin, nil
			}
			return nil, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			switch id {
			case "valid":
				return &model.Session{ID: id, AdminID: "admin-1"}, nil
			case "orphan":
				return &model.Session{ID: id, AdminID: "gone"}, nil
			default:
				return nil, nil
			}
		},
	}
	svc := newTestService(adminRepo, sessionRepo, nil)

	got, err := svc.CurrentAdmin(context.Background(), "valid")
	if err != nil || got.ID != "admin-1" {
		t.Fatalf("CurrentAdmin(valid) = %+v, %v", got, err)
	}

	for _, id := range []string{"", "expired", "orphan"} {
		_, err := svc.CurrentAdmin(context.Background(), id)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
			t.Errorf("CurrentAdmin(%q) error = %v, want UNAUTHORIZED", id, err)
		}
	}
}

func TestCreateAdmin_HashesPassword(t *testing.T) {
	var saved *model.AdminUser
	adminRepo := &mockAdminRepo{
		upsertFn: func(_ context.Context, user *model.AdminUser) error {
			saved = user
			return nil
		},
	}
	svc := newTestService(adminRepo, &mockSessionRepo{}, nil)

	admin, err := svc.CreateAdmin(context.Background(), "Ops@Example.com", "s3cret!")
	if err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}
	if saved != admin || admin.Email != "ops@example.com" || admin.ID == "" {
		t.Errorf("saved = %+v", saved)
	}
	if admin.PasswordHash == "s3cret!" {
		t.Fatal("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret!")); err != nil {
		t.Errorf("stored hash does not match: %v", err)
	}
}

func TestCreateAdmin_Validation(t *testing.T) {
	svc := newTestService(&mockAdminRepo{}, &mockSessionRepo{}, nil)

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name, email, password string
	}{
		{"missing email", " ", "pw"},
		{"missing password", "ops@example.com", ""},
		{"password too long", "ops@example.com", string(long)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAdmin(context.Background(), tt.email, tt.password)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
				t.Errorf("CreateAdmin() error = %v, want VALIDATION_FAILED", err)
			}
		})
	}
}
