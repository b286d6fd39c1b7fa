package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"saas-tenancy-api/internal/application/audit"
	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/internal/infrastructure/notify"
	"saas-tenancy-api/internal/infrastructure/persistence/memory"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/utils"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.PasswordReset
}

func (n *captureNotifier) SendPasswordReset(ctx context.Context, msg notify.PasswordReset) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) last() notify.PasswordReset {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type fixture struct {
	store    *memory.Store
	svc      *Service
	notifier *captureNotifier
	jwt      *utils.JWTManager
	admin    *entity.User
	manager  *entity.User
	alice    *entity.User
}

const password = "correct-horse"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:    store,
		notifier: &captureNotifier{},
		jwt:      utils.NewJWTManager("test-secret", "saas-tenancy-api"),
	}
	f.svc = NewService(store.Users(), store.PasswordResets(), store.Organizations(),
		authz.NewPolicy(store.Users(), store.Organizations()),
		audit.NewLogger(store.Audit(), nil), f.notifier, f.jwt, memory.NewTransactor(),
		Options{BcryptCost: bcrypt.MinCost, PasswordResetTTL: time.Hour})

	f.admin = f.seed(t, "admin@example.com", entity.UserRoleAdmin)
	f.manager = f.seed(t, "manager@example.com", entity.UserRoleManager)
	f.alice = f.seed(t, "alice@example.com", entity.UserRoleUser)
	return f
}

func (f *fixture) seed(t *testing.T, email string, role entity.UserRole) *entity.User {
	t.Helper()
	u := entity.NewUser(email, "Test", "User", role)
	require.NoError(t, u.SetPassword(password, bcrypt.MinCost))
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func as(u *entity.User) context.Context {
	return authz.WithActor(context.Background(), authz.Actor{UserID: u.ID, Email: u.Email, Role: u.Role})
}

func (f *fixture) storedHash(t *testing.T, id string) string {
	t.Helper()
	u, err := f.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.PasswordHash
}

func TestChangePassword_WrongCurrentKeepsHash(t *testing.T) {
	f := newFixture(t)
	before := f.storedHash(t, f.alice.ID)

	err := f.svc.ChangePassword(as(f.alice), f.alice.ID, "not-the-password", "brand-new-pass")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidCredentials))
	assert.Equal(t, before, f.storedHash(t, f.alice.ID))

	res, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: password})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, res.User.ID)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.ChangePassword(as(f.alice), f.alice.ID, password, "brand-new-pass"))

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: password})
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "brand-new-pass"})
	assert.NoError(t, err)

	err = f.svc.ChangePassword(as(f.admin), f.alice.ID, password, "another-pass")
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	err = f.svc.ChangePassword(as(f.alice), f.alice.ID, "brand-new-pass", "short")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Login(context.Background(), LoginInput{Email: " Alice@Example.com", Password: password})
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	require.NotNil(t, res.User.LastLoginAt)

	claims, err := f.jwt.ParseToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, claims.UserID)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, utils.TokenTypeAccess, claims.Type)

	refreshed, err := f.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, refreshed.User.ID)

	_, err = f.svc.Refresh(context.Background(), res.Tokens.AccessToken)
	assert.True(t, errors.HasCode(err, errors.CodeTokenInvalid))

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "nobody@example.com", Password: password})
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))

	inactive := entity.UserStatusInactive
	_, err = f.svc.UpdateUser(as(f.admin), f.alice.ID, UpdateUserInput{Status: &inactive})
	require.NoError(t, err)
	_, err = f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: password})
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Empty(t, f.notifier.sent)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ALICE@example.com"))
	token := f.notifier.last().Token
	require.NotEmpty(t, token)

	err := f.svc.SetPasswordWithToken(ctx, "bogus", "reset-password")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidResetToken))

	require.NoError(t, f.svc.SetPasswordWithToken(ctx, token, "reset-password"))
	_, err = f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "reset-password"})
	assert.NoError(t, err)

	err = f.svc.SetPasswordWithToken(ctx, token, "second-reset")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidResetToken))
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.CreateUser(as(f.manager), CreateUserInput{
		Email:     "Bob@Example.com",
		Password:  "long-enough",
		FirstName: "Bob",
		LastName:  "Builder",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.Equal(t, entity.UserRoleUser, u.Role)
	assert.Equal(t, entity.UserStatusActive, u.Status)
	assert.NotEqual(t, "long-enough", u.PasswordHash)

	_, err = f.svc.CreateUser(as(f.manager), CreateUserInput{
		Email: "bob@example.com", Password: "long-enough", FirstName: "B", LastName: "B",
	})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	_, err = f.svc.CreateUser(as(f.manager), CreateUserInput{
		Email: "root@example.com", Password: "long-enough", FirstName: "R", LastName: "R", Role: entity.UserRoleAdmin,
	})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	_, err = f.svc.CreateUser(as(f.alice), CreateUserInput{
		Email: "eve@example.com", Password: "long-enough", FirstName: "E", LastName: "E",
	})
	assert.True(t, errors.HasCode(err, errors.CodePermissionDenied))

	_, err = f.svc.CreateUser(as(f.admin), CreateUserInput{Email: "not-an-email", Password: "x"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))
}

func TestUpdateUser_Permissions(t *testing.T) {
	f := newFixture(t)
	name := "Alicia"
	role := entity.UserRoleAdmin

	u, err := f.svc.UpdateUser(as(f.alice), f.alice.ID, UpdateUserInput{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", u.FirstName)

	_, err = f.svc.UpdateUser(as(f.alice), f.alice.ID, UpdateUserInput{Role: &role})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	_, err = f.svc.UpdateUser(as(f.manager), f.alice.ID, UpdateUserInput{FirstName: &name})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	taken := "manager@example.com"
	_, err = f.svc.UpdateUser(as(f.admin), f.alice.ID, UpdateUserInput{Email: &taken})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	_, err = f.svc.UpdateUser(as(f.admin), "00000000-0000-0000-0000-000000000000", UpdateUserInput{FirstName: &name})
	assert.True(t, errors.HasCode(err, errors.CodeUserNotFound))
}

func TestListUsers_FiltersAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bob := f.seed(t, "bob@example.com", entity.UserRoleUser)
	bob.Status = entity.UserStatusInactive
	require.NoError(t, f.store.Users().Update(ctx, bob))

	carol := f.seed(t, "carol@example.com", entity.UserRoleUser)
	carol.EmailVerified = true
	require.NoError(t, f.store.Users().Update(ctx, carol))

	verified, unverified := true, false
	emails := func(users []*entity.User) []string {
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.Email)
		}
		return out
	}

	tests := []struct {
		name string
		in   ListUsersInput
		want []string
	}{
		{"all", ListUsersInput{}, []string{"admin@example.com", "manager@example.com", "alice@example.com", "bob@example.com", "carol@example.com"}},
		{"role", ListUsersInput{Role: entity.UserRoleUser}, []string{"alice@example.com", "bob@example.com", "carol@example.com"}},
		{"status", ListUsersInput{Status: entity.UserStatusInactive}, []string{"bob@example.com"}},
		{"verified", ListUsersInput{EmailVerified: &verified}, []string{"carol@example.com"}},
		{"combined", ListUsersInput{Role: entity.UserRoleUser, Status: entity.UserStatusActive, EmailVerified: &unverified}, []string{"alice@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.svc.ListUsers(as(f.manager), tt.in, repository.NewPagination(1, 100))
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, emails(result.Items))
			assert.Equal(t, int64(len(tt.want)), result.Total)
		})
	}

	seen := make([]string, 0, 5)
	for page := 1; page <= 3; page++ {
		result, err := f.svc.ListUsers(as(f.admin), ListUsersInput{}, repository.NewPagination(page, 2))
		require.NoError(t, err)
		assert.Equal(t, int64(5), result.Total)
		assert.Equal(t, 3, result.TotalPages)
		assert.Equal(t, page, result.Page)
		if page < 3 {
			assert.Len(t, result.Items, 2)
		} else {
			assert.Len(t, result.Items, 1)
		}
		seen = append(seen, emails(result.Items)...)
	}
	assert.ElementsMatch(t, tests[0].want, seen, "pages cover every user exactly once")

	result, err := f.svc.ListUsers(as(f.admin), ListUsersInput{}, repository.NewPagination(4, 2))
	require.NoError(t, err)
	assert.Empty(t, result.Items)

	_, err = f.svc.ListUsers(as(f.alice), ListUsersInput{}, repository.NewPagination(1, 20))
	assert.True(t, errors.HasCode(err, errors.CodePermissionDenied))

	_, err = f.svc.ListUsers(as(f.admin), ListUsersInput{Status: "banned"}, repository.NewPagination(1, 20))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParam))
}

func TestGetAndDeleteUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetUser(as(f.alice), f.manager.ID)
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	got, err := f.svc.GetUser(as(f.manager), f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, f.alice.Email, got.Email)

	err = f.svc.DeleteUser(as(f.manager), f.alice.ID)
	assert.True(t, errors.HasCode(err, errors.CodePermissionDenied))

	require.NoError(t, f.svc.DeleteUser(as(f.admin), f.alice.ID))
	_, err = f.svc.GetUser(as(f.admin), f.alice.ID)
	assert.True(t, errors.HasCode(err, errors.CodeUserNotFound))
}

func TestOrganizationMembership(t *testing.T) {
	f := newFixture(t)

	org, err := f.svc.CreateOrganization(as(f.alice), CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)

	members, err := f.svc.ListMembers(as(f.alice), org.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, entity.MembershipRoleOwner, members[0].Role)

	_, err = f.svc.GetOrganization(as(f.manager), org.ID)
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	m, err := f.svc.AddUserToOrganization(as(f.alice), org.ID, AddMemberInput{UserID: f.manager.ID})
	require.NoError(t, err)
	assert.Equal(t, entity.MembershipRoleMember, m.Role)

	_, err = f.svc.AddUserToOrganization(as(f.alice), org.ID, AddMemberInput{UserID: f.manager.ID})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	_, err = f.svc.AddUserToOrganization(as(f.manager), org.ID, AddMemberInput{UserID: f.admin.ID})
	assert.True(t, errors.HasCode(err, errors.CodeForbidden))

	orgs, err := f.svc.GetUserOrganizations(as(f.manager), f.manager.ID)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, org.ID, orgs[0].ID)

	err = f.svc.RemoveUserFromOrganization(as(f.alice), org.ID, f.alice.ID)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	require.NoError(t, f.svc.RemoveUserFromOrganization(as(f.alice), org.ID, f.manager.ID))
	err = f.svc.RemoveUserFromOrganization(as(f.alice), org.ID, f.manager.ID)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	_, err = f.svc.AddUserToOrganization(as(f.alice), "00000000-0000-0000-0000-000000000000", AddMemberInput{UserID: f.manager.ID})
	assert.True(t, errors.HasCode(err, errors.CodeOrganizationNotFound))
}

func TestDirectory_WritesAuditEvents(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrganization(as(f.alice), CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)
	_, err = f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: password})
	require.NoError(t, err)

	actions := make([]string, 0)
	for _, ev := range f.store.AuditEvents() {
		actions = append(actions, ev.Action)
		require.NotNil(t, ev.UserID)
		assert.Equal(t, f.alice.ID, *ev.UserID)
	}
	assert.Equal(t, []string{entity.AuditOrgCreated, entity.AuditUserLogin}, actions)
}
