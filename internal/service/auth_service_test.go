package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/quizlock/quizlock-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

func newTestAuthService(t *testing.T) (*AuthService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: 4, // Minimum cost, tests don't need slow hashing.
	}
	return NewAuthService(cfg, rdb), mr
}

func TestStudentTokenRoundTrip(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.GenerateStudentToken(ctx, 42)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.TokenType != TokenTypeStudent {
		t.Errorf("token type = %q, want student", claims.TokenType)
	}
	if claims.UserID != 42 {
		t.Errorf("user id = %d, want 42", claims.UserID)
	}

	if err := svc.ValidateStudentSession(ctx, 42, claims.ID); err != nil {
		t.Errorf("session validation failed: %v", err)
	}
}

func TestSecondLoginRejectedWhileSessionActive(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.GenerateStudentToken(ctx, 7); err != nil {
		t.Fatalf("first login: %v", err)
	}

	_, err := svc.GenerateStudentToken(ctx, 7)
	if err != ErrSessionAlreadyActive {
		t.Errorf("second login error = %v, want ErrSessionAlreadyActive", err)
	}
}

func TestResetSessionAllowsNewLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	first, err := svc.GenerateStudentToken(ctx, 7)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	if err := svc.ResetStudentSession(ctx, 7); err != nil {
		t.Fatalf("reset session: %v", err)
	}

	second, err := svc.GenerateStudentToken(ctx, 7)
	if err != nil {
		t.Fatalf("login after reset: %v", err)
	}

	// The old token's JTI no longer matches the stored session.
	oldClaims, _ := svc.ValidateToken(first)
	if err := svc.ValidateStudentSession(ctx, 7, oldClaims.ID); err == nil {
		t.Error("old session still validates after reset and relogin")
	}
	newClaims, _ := svc.ValidateToken(second)
	if err := svc.ValidateStudentSession(ctx, 7, newClaims.ID); err != nil {
		t.Errorf("new session does not validate: %v", err)
	}
}

func TestAdminTokenCarriesPermissions(t *testing.T) {
	svc, _ := newTestAuthService(t)

	token, err := svc.GenerateAdminToken(3, 2, []string{"quizzes:read", "quizzes:write_own"})
	if err != nil {
		t.Fatalf("generate admin token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.TokenType != TokenTypeAdmin {
		t.Errorf("token type = %q, want admin", claims.TokenType)
	}
	if claims.RoleID != 2 || len(claims.Permissions) != 2 {
		t.Errorf("claims = %+v, want role 2 with 2 permissions", claims)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, _ := newTestAuthService(t)

	other := NewAuthService(&config.Config{
		JWTSecret: "different-secret",
		JWTExpiry: time.Hour,
	}, nil)
	token, err := other.GenerateAdminToken(1, 1, nil)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret validated")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	svc, _ := newTestAuthService(t)

	hash, err := svc.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := svc.CheckPassword(hash, "hunter22"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := svc.CheckPassword(hash, "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
}
