package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func mustRegister(t *testing.T, service *Service, name, password string) User {
	t.Helper()
	user, err := service.Register(context.Background(), RegisterInput{
		Name:            name,
		Password:        password,
		ConfirmPassword: password,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return user
}

func TestRegisterCreatesDefaultLevelAccount(t *testing.T) {
	service, db := newTestService(t)

	user := mustRegister(t, service, "  alice ", "pw-1")
	if user.ID == 0 {
		t.Fatalf("expected generated id")
	}
	if user.Name != "alice" {
		t.Fatalf("expected trimmed name, got %q", user.Name)
	}
	if user.PrivilegeLevel != 1 {
		t.Fatalf("expected default level 1, got %d", user.PrivilegeLevel)
	}

	var stored User
	if err := db.Where("id = ?", user.ID).Take(&stored).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if stored.PasswordHash == "pw-1" || stored.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}
}

func TestRegisterValidation(t *testing.T) {
	service, _ := newTestService(t)
	mustRegister(t, service, "taken", "pw")

	testCases := []struct {
		name    string
		input   RegisterInput
		message string
	}{
		{name: "missing-name", input: RegisterInput{Password: "a", ConfirmPassword: "a"}, message: "name is required"},
		{name: "missing-password", input: RegisterInput{Name: "bob"}, message: "password is required"},
		{name: "mismatch", input: RegisterInput{Name: "bob", Password: "a", ConfirmPassword: "b"}, message: "passwords do not match"},
		{name: "duplicate", input: RegisterInput{Name: "taken", Password: "a", ConfirmPassword: "a"}, message: "name already exists"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.Register(context.Background(), testCase.input)
			var validation *access.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if validation.Message != testCase.message {
				t.Fatalf("unexpected message %q", validation.Message)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	service, _ := newTestService(t)
	registered := mustRegister(t, service, "carol", "secret")

	user, err := service.Authenticate(context.Background(), "carol", "secret")
	if err != nil {
		t.Fatalf("expected authentication to succeed: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("unexpected user %d", user.ID)
	}

	if _, err := service.Authenticate(context.Background(), "carol", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown name, got %v", err)
	}
}

func TestLoadPrincipal(t *testing.T) {
	service, db := newTestService(t)
	user := mustRegister(t, service, "dave", "pw")
	if err := db.Model(&User{}).Where("id = ?", user.ID).Update("privilege_level", 3).Error; err != nil {
		t.Fatalf("failed to raise level: %v", err)
	}

	principal, ok, err := service.LoadPrincipal(context.Background(), user.ID)
	if err != nil || !ok {
		t.Fatalf("expected principal, ok=%v err=%v", ok, err)
	}
	if principal.ID != user.ID || principal.PrivilegeLevel != 3 {
		t.Fatalf("unexpected principal %#v", principal)
	}

	_, ok, err = service.LoadPrincipal(context.Background(), user.ID+100)
	if err != nil || ok {
		t.Fatalf("expected missing account to degrade to anonymous, ok=%v err=%v", ok, err)
	}
}

func TestDisplayNames(t *testing.T) {
	service, _ := newTestService(t)
	first := mustRegister(t, service, "erin", "pw")
	second := mustRegister(t, service, "frank", "pw")

	names, err := service.DisplayNames(context.Background(), []int64{first.ID, second.ID, 999})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[first.ID] != "erin" || names[second.ID] != "frank" {
		t.Fatalf("unexpected names %#v", names)
	}
}

func TestUpdateProfile(t *testing.T) {
	service, _ := newTestService(t)
	user := mustRegister(t, service, "gina", "pw")
	mustRegister(t, service, "hank", "pw")

	updated, err := service.UpdateProfile(context.Background(), access.Principal{ID: user.ID, PrivilegeLevel: 1}, ProfileInput{
		Name:      "gina2",
		Email:     "gina@example.com",
		AvatarURL: "/upload/gina.png",
	})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Name != "gina2" || updated.Email != "gina@example.com" || updated.AvatarURL != "/upload/gina.png" {
		t.Fatalf("unexpected profile %#v", updated)
	}

	_, err = service.UpdateProfile(context.Background(), access.Principal{ID: user.ID, PrivilegeLevel: 1}, ProfileInput{Name: "hank"})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected duplicate name rejection, got %v", err)
	}

	_, err = service.UpdateProfile(context.Background(), access.Principal{ID: 4242, PrivilegeLevel: 1}, ProfileInput{Name: "ghost"})
	if !errors.Is(err, access.ErrAuthOrNotFound) {
		t.Fatalf("expected not found for missing account, got %v", err)
	}
}
