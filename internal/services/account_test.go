package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AnshRaj112/accountd/internal/models"
	"github.com/AnshRaj112/accountd/internal/repository"
	"github.com/AnshRaj112/accountd/pkg/utils"
)

func strPtr(s string) *string { return &s }

func register(t *testing.T, f *fixture, email, password string) models.Account {
	t.Helper()
	account, err := f.svc.CreateUser(context.Background(), CreateUserInput{
		Email:     email,
		Password:  password,
		FirstName: "A",
	})
	require.NoError(t, err)
	return account
}

func TestCreateUser_CreatesLinkedUserAndProfile(t *testing.T) {
	f := newFixture(t, AccountOptions{})

	account, err := f.svc.CreateUser(context.Background(), CreateUserInput{
		Email:     "A@X.com ",
		Password:  "p1",
		FirstName: "A",
		LastName:  strPtr("B"),
	})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", account.User.Email)
	assert.Equal(t, account.User.ID, account.Profile.UserID)
	assert.Equal(t, "A", account.Profile.FirstName)
	assert.Equal(t, "B", account.Profile.LastName)
	assert.NotEqual(t, "p1", account.User.Password)
	assert.Equal(t, 1, f.store.userCount())
	assert.Equal(t, 1, f.store.profileCount())
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	register(t, f, "a@x.com", "p1")

	_, err := f.svc.CreateUser(context.Background(), CreateUserInput{Email: "a@x.com", Password: "p2", FirstName: "Z"})

	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Email already exists", err.Error())
	assert.Equal(t, 1, f.store.userCount())
	assert.Equal(t, 1, f.store.profileCount())
}

func TestCreateUser_ProfileFailureRollsBackUser(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	f.store.failProfileCreate = errBoom

	_, err := f.svc.CreateUser(context.Background(), CreateUserInput{Email: "a@x.com", Password: "p1", FirstName: "A"})

	require.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, "failed to create user", err.Error())
	assert.Equal(t, 0, f.store.userCount())
	assert.Equal(t, 0, f.store.profileCount())
}

func TestCreateUser_ConcurrentDuplicateIsConflict(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	f.store.failUserWrite = repository.ErrDuplicate

	_, err := f.svc.CreateUser(context.Background(), CreateUserInput{Email: "a@x.com", Password: "p1", FirstName: "A"})

	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Email already exists", err.Error())
	assert.Equal(t, 0, f.store.userCount())
	assert.Equal(t, 0, f.store.profileCount())
}

func TestCreateUser_Validation(t *testing.T) {
	f := newFixture(t, AccountOptions{})

	cases := map[string]CreateUserInput{
		"missing email":  {Password: "p", FirstName: "A"},
		"bad email":      {Email: "not-an-email", Password: "p", FirstName: "A"},
		"display name":   {Email: "A <a@x.com>", Password: "p", FirstName: "A"},
		"missing pass":   {Email: "a@x.com", FirstName: "A"},
		"blank firstNam": {Email: "a@x.com", Password: "p", FirstName: "  "},
	}
	for name, in := range cases {
		_, err := f.svc.CreateUser(context.Background(), in)
		assert.ErrorIs(t, err, ErrValidation, name)
	}
	assert.Equal(t, 0, f.store.userCount())
}

func TestLogin_SuccessIssuesVerifiableToken(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	account := register(t, f, "a@x.com", "p1")

	logged, err := f.svc.Login(context.Background(), "a@x.com", "p1")
	require.NoError(t, err)

	assert.Equal(t, account.User.ID, logged.Account.User.ID)
	assert.Equal(t, "A", logged.Account.Profile.FirstName)
	id, ok := f.tokens.Verify(logged.Token)
	assert.True(t, ok)
	assert.Equal(t, account.User.ID.Hex(), id)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	register(t, f, "a@x.com", "p1")

	_, wrongPassword := f.svc.Login(context.Background(), "a@x.com", "wrong")
	_, unknownEmail := f.svc.Login(context.Background(), "nobody@x.com", "p1")

	require.ErrorIs(t, wrongPassword, ErrAuthentication)
	require.ErrorIs(t, unknownEmail, ErrAuthentication)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, "Invalid email or password", wrongPassword.Error())
}

func TestLogin_UnknownEmailStillComparesPassword(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	register(t, f, "a@x.com", "p1")
	require.NotEmpty(t, f.svc.decoyHash)

	before := f.passwords.calls()
	_, err := f.svc.Login(context.Background(), "a@x.com", "wrong")
	require.ErrorIs(t, err, ErrAuthentication)
	knownEmail := f.passwords.calls() - before

	before = f.passwords.calls()
	_, err = f.svc.Login(context.Background(), "nobody@x.com", "wrong")
	require.ErrorIs(t, err, ErrAuthentication)
	unknownEmail := f.passwords.calls() - before

	assert.Equal(t, 1, knownEmail)
	assert.Equal(t, knownEmail, unknownEmail)
}

func mustWeakHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := utils.NewPasswordHasher(utils.HashParams{Memory: 512, Time: 1, Threads: 1}).Hash(password)
	require.NoError(t, err)
	return hash
}

func TestLogin_RehashesWeakHash(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	account := register(t, f, "a@x.com", "p1")

	f.store.mu.Lock()
	u := f.store.users[account.User.ID]
	u.Password = mustWeakHash(t, "p1")
	f.store.users[account.User.ID] = u
	f.store.mu.Unlock()

	_, err := f.svc.Login(context.Background(), "a@x.com", "p1")
	require.NoError(t, err)

	f.store.mu.Lock()
	stored := f.store.users[account.User.ID].Password
	f.store.mu.Unlock()
	assert.True(t, strings.Contains(stored, "m=1024,t=1,p=1"), stored)
}

func TestUpdateUser_ChangesOwnAccount(t *testing.T) {
	f := newFixture(t, AccountOptions{UploadFolder: "profiles"})
	account := register(t, f, "a@x.com", "p1")

	updated, err := f.svc.UpdateUser(context.Background(), account.User.ID.Hex(), UpdateUserInput{
		Email:        strPtr("b@x.com"),
		FirstName:    strPtr("Ann"),
		LastName:     strPtr("Lee"),
		ProfileImage: &Upload{Filename: "me.png", Content: []byte("png")},
	})
	require.NoError(t, err)

	assert.Equal(t, "b@x.com", updated.User.Email)
	assert.Equal(t, "Ann", updated.Profile.FirstName)
	assert.Equal(t, "Lee", updated.Profile.LastName)
	assert.Equal(t, "https://cdn.example/img.png", updated.Profile.ProfileImage)
	require.NotNil(t, f.uploader.got)
	assert.Equal(t, "me.png", f.uploader.got.Filename)
	assert.Equal(t, "profiles", f.uploader.folder)
}

func TestUpdateUser_SameEmailIsNotAConflict(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	account := register(t, f, "a@x.com", "p1")

	updated, err := f.svc.UpdateUser(context.Background(), account.User.ID.Hex(), UpdateUserInput{Email: strPtr("a@x.com")})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", updated.User.Email)
}

func TestUpdateUser_EmailTaken(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	register(t, f, "taken@x.com", "p1")
	account := register(t, f, "a@x.com", "p1")

	_, err := f.svc.UpdateUser(context.Background(), account.User.ID.Hex(), UpdateUserInput{Email: strPtr("taken@x.com")})

	require.ErrorIs(t, err, ErrConflict)
	assert.Nil(t, f.uploader.got)
}

func TestUpdateUser_ConcurrentEmailTakenIsConflict(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	account := register(t, f, "a@x.com", "p1")
	f.store.failUserWrite = repository.ErrDuplicate

	_, err := f.svc.UpdateUser(context.Background(), account.User.ID.Hex(), UpdateUserInput{
		Email:     strPtr("b@x.com"),
		FirstName: strPtr("Changed"),
	})

	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Email already exists", err.Error())
	f.store.failUserWrite = nil
	me, err := f.svc.Me(context.Background(), account.User.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", me.User.Email)
	assert.Equal(t, "A", me.Profile.FirstName)
}

func TestUpdateUser_UnknownCaller(t *testing.T) {
	f := newFixture(t, AccountOptions{})

	_, err := f.svc.UpdateUser(context.Background(), primitive.NewObjectID().Hex(), UpdateUserInput{FirstName: strPtr("X")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.UpdateUser(context.Background(), "not-an-id", UpdateUserInput{FirstName: strPtr("X")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUser_UploadFailure(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	account := register(t, f, "a@x.com", "p1")
	f.uploader.err = errBoom

	_, err := f.svc.UpdateUser(context.Background(), account.User.ID.Hex(), UpdateUserInput{
		FirstName:    strPtr("Changed"),
		ProfileImage: &Upload{Filename: "me.png", Content: []byte("png")},
	})
	require.ErrorIs(t, err, ErrTransient)

	me, err := f.svc.Me(context.Background(), account.User.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "A", me.Profile.FirstName)
}

func TestUpdateUser_UploadsDisabled(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	f.svc.deps.Uploader = nil
	account := register(t, f, "a@x.com", "p1")

	_, err := f.svc.UpdateUser(context.Background(), account.User.ID.Hex(), UpdateUserInput{
		ProfileImage: &Upload{Filename: "me.png", Content: []byte("png")},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	account := register(t, f, "a@x.com", "p1")
	id := account.User.ID.Hex()

	t.Run("wrong current password", func(t *testing.T) {
		_, err := f.svc.ChangePassword(context.Background(), id, ChangePasswordInput{
			CurrentPassword: "nope", NewPassword: "p2", ConfirmPassword: "p2",
		})
		require.ErrorIs(t, err, ErrAuthentication)
		assert.Equal(t, "Invalid password", err.Error())
	})

	t.Run("confirmation mismatch leaves password untouched", func(t *testing.T) {
		_, err := f.svc.ChangePassword(context.Background(), id, ChangePasswordInput{
			CurrentPassword: "p1", NewPassword: "p2", ConfirmPassword: "p3",
		})
		require.ErrorIs(t, err, ErrValidation)

		_, err = f.svc.Login(context.Background(), "a@x.com", "p1")
		assert.NoError(t, err)
	})

	t.Run("success re-issues token", func(t *testing.T) {
		logged, err := f.svc.ChangePassword(context.Background(), id, ChangePasswordInput{
			CurrentPassword: "p1", NewPassword: "p2", ConfirmPassword: "p2",
		})
		require.NoError(t, err)

		got, ok := f.tokens.Verify(logged.Token)
		assert.True(t, ok)
		assert.Equal(t, id, got)

		_, err = f.svc.Login(context.Background(), "a@x.com", "p1")
		assert.ErrorIs(t, err, ErrAuthentication)
		_, err = f.svc.Login(context.Background(), "a@x.com", "p2")
		assert.NoError(t, err)
	})
}

func TestForgetAndResetPassword(t *testing.T) {
	f := newFixture(t, AccountOptions{ResetURLBase: "http://localhost:3000/reset-password", RevealUnknownEmail: true})
	account := register(t, f, "a@x.com", "p1")

	ok, err := f.svc.ForgetPassword(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	f.store.mu.Lock()
	stored := f.store.users[account.User.ID].ResetPasswordToken
	f.store.mu.Unlock()
	require.NotNil(t, stored)
	token := *stored

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "a@x.com", f.mailer.sent[0].To)
	assert.Equal(t, "Reset password", f.mailer.sent[0].Subject)
	assert.Contains(t, f.mailer.sent[0].HTML, `href="http://localhost:3000/reset-password/`+token+`"`)

	msg, err := f.svc.ResetPassword(context.Background(), token, "p2")
	require.NoError(t, err)
	assert.Equal(t, "password successfully updated", msg)

	_, err = f.svc.Login(context.Background(), "a@x.com", "p2")
	assert.NoError(t, err)
	_, err = f.svc.Login(context.Background(), "a@x.com", "p1")
	assert.ErrorIs(t, err, ErrAuthentication)

	// tokens are single use
	_, err = f.svc.ResetPassword(context.Background(), token, "p3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetPassword_UnknownToken(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	register(t, f, "a@x.com", "p1")

	_, err := f.svc.ResetPassword(context.Background(), "no-such-token", "p2")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.ResetPassword(context.Background(), "", "p2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	register(t, f, "a@x.com", "p1")

	issued := time.Now()
	f.svc.deps.Resets.now = func() time.Time { return issued }
	f.svc.deps.Resets.newToken = func() string { return "fixed-token" }
	_, err := f.svc.ForgetPassword(context.Background(), "a@x.com")
	require.NoError(t, err)

	f.svc.deps.Resets.now = func() time.Time { return issued.Add(2 * time.Hour) }
	token := "fixed-token"

	_, err = f.svc.ResetPassword(context.Background(), token, "p2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForgetPassword_UnknownEmailPolicy(t *testing.T) {
	reveal := newFixture(t, AccountOptions{RevealUnknownEmail: true})
	ok, err := reveal.svc.ForgetPassword(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	hide := newFixture(t, AccountOptions{RevealUnknownEmail: false})
	ok, err = hide.svc.ForgetPassword(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Empty(t, reveal.mailer.sent)
	assert.Empty(t, hide.mailer.sent)
}

func TestForgetPassword_MailFailureKeepsToken(t *testing.T) {
	f := newFixture(t, AccountOptions{RevealUnknownEmail: true})
	account := register(t, f, "a@x.com", "p1")
	f.mailer.err = errors.New("smtp down")

	ok, err := f.svc.ForgetPassword(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.NotNil(t, f.store.users[account.User.ID].ResetPasswordToken)
}

func TestUsersAndPosts(t *testing.T) {
	f := newFixture(t, AccountOptions{})
	a := register(t, f, "a@x.com", "p1")
	register(t, f, "b@x.com", "p1")
	f.store.posts = []models.Post{
		{ID: primitive.NewObjectID(), Author: a.User.ID, Title: "first"},
		{ID: primitive.NewObjectID(), Author: primitive.NewObjectID(), Title: "other"},
	}

	accounts, err := f.svc.Users(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	posts, err := f.svc.Posts(context.Background(), a.User.ID)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "first", posts[0].Title)
}
