package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/filesman/internal/model"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id int64) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(_ context.Context, _ *model.User) error { return nil }

func (m *mockUserRepo) Count(_ context.Context) (int64, error) { return 0, nil }

func userWithPassword(t *testing.T, id int64, email, password string) *model.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	return &model.User{ID: id, Email: email, PasswordHash: hash}
}

// --- テスト ---

func TestService_Connect_Success(t *testing.T) {
	tc, _ := newTestTokenCache(t)
	user := userWithPassword(t, 5, "bob@dylan.com", "toto1234!")
	svc := NewService(&mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, nil
		},
	}, tc)

	token, err := svc.Connect(context.Background(), "bob@dylan.com", "toto1234!")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	userID, ok, err := svc.ResolveToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ResolveToken returned error: %v", err)
	}
	if !ok || userID != 5 {
		t.Errorf("ResolveToken = (%d, %v), want (5, true)", userID, ok)
	}
}

func TestService_Connect_Rejected(t *testing.T) {
	tc, _ := newTestTokenCache(t)
	user := userWithPassword(t, 5, "bob@dylan.com", "toto1234!")
	repo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, nil
		},
	}
	svc := NewService(repo, tc)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "bob@dylan.com", "nope"},
		{"unknown email", "alice@example.com", "toto1234!"},
		{"empty email", "", "toto1234!"},
		{"empty password", "bob@dylan.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Connect(context.Background(), tt.email, tt.password)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeUnauthorized {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestService_Connect_RepoError(t *testing.T) {
	tc, _ := newTestTokenCache(t)
	svc := NewService(&mockUserRepo{
		findByEmailFn: func(context.Context, string) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}, tc)

	_, err := svc.Connect(context.Background(), "a@b.c", "x")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("repository failure should not be an APIError, got %v", apiErr)
	}
}

func TestService_Disconnect(t *testing.T) {
	tc, _ := newTestTokenCache(t)
	svc := NewService(&mockUserRepo{}, tc)
	ctx := context.Background()

	token, _ := tc.Issue(ctx, 3)
	if err := svc.Disconnect(ctx, token); err != nil {
		t.Fatalf("Disconnect returned error: %v", err)
	}
	if _, ok, _ := svc.ResolveToken(ctx, token); ok {
		t.Error("token should not resolve after disconnect")
	}

	if err := svc.Disconnect(ctx, ""); err == nil {
		t.Error("empty token should be rejected")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "secret" {
		t.Error("hash should not equal the plain password")
	}
	if !CheckPassword("secret", hash) {
		t.Error("CheckPassword should accept the right password")
	}
	if CheckPassword("Secret", hash) {
		t.Error("CheckPassword should reject a wrong password")
	}
}
