package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/models"
	"github.com/AnshRaj112/accountd/internal/repository"
)

const (
	msgEmailExists        = "Email already exists"
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidPassword    = "Invalid password"
	msgUserNotFound       = "user not found"
	msgPasswordMismatch   = "New password and confirm password do not match"
	msgPasswordUpdated    = "password successfully updated"

	defaultMailTimeout = 30 * time.Second
)

// PasswordVerifier checks plaintext passwords against stored hashes.
type PasswordVerifier interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
	NeedsRehash(hash string) bool
}

type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  *string
}

type UpdateUserInput struct {
	Email        *string
	FirstName    *string
	LastName     *string
	ProfileImage *Upload
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// LoggedUser is an account paired with a freshly issued session token.
type LoggedUser struct {
	Account models.Account
	Token   string
}

type AccountOptions struct {
	ResetURLBase string
	// RevealUnknownEmail makes ForgetPassword return false for unknown
	// addresses. When off, every request reports true.
	RevealUnknownEmail bool
	UploadFolder       string
	MailTimeout        time.Duration
}

// AccountDeps are the collaborators of AccountService. Uploader and Mailer
// may be nil: uploads are then rejected and reset mails are only logged.
type AccountDeps struct {
	Users     repository.UserRepository
	Profiles  repository.ProfileRepository
	Posts     repository.PostRepository
	Tx        repository.TxManager
	Tokens    *TokenService
	Resets    *ResetLedger
	Passwords PasswordVerifier
	Uploader  Uploader
	Mailer    Mailer
	Logger    *zap.Logger
}

type AccountService struct {
	deps AccountDeps
	log  *zap.Logger
	opts AccountOptions
	// decoyHash is verified against when the email is unknown so both login
	// failures cost one full hash comparison.
	decoyHash string
	// dispatch runs fire-and-forget work. Tests replace it to run inline.
	dispatch func(func())
}

func NewAccountService(deps AccountDeps, opts AccountOptions) *AccountService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Mailer == nil {
		deps.Mailer = LogMailer{Logger: deps.Logger}
	}
	if opts.MailTimeout <= 0 {
		opts.MailTimeout = defaultMailTimeout
	}
	s := &AccountService{
		deps:     deps,
		log:      deps.Logger,
		opts:     opts,
		dispatch: func(fn func()) { go fn() },
	}
	decoy, err := deps.Passwords.Hash(uuid.NewString())
	if err != nil {
		s.log.Warn("failed to build decoy password hash", zap.Error(err))
	}
	s.decoyHash = decoy
	return s
}

// CreateUser registers a user and its profile atomically.
func (s *AccountService) CreateUser(ctx context.Context, in CreateUserInput) (models.Account, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return models.Account{}, err
	}
	if in.Password == "" {
		return models.Account{}, validationError("password is required")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return models.Account{}, validationError("firstName is required")
	}

	if err := s.ensureEmailFree(ctx, email); err != nil {
		return models.Account{}, err
	}

	var account models.Account
	err := s.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		user, err := s.deps.Users.Create(ctx, email, in.Password)
		if err != nil {
			return err
		}
		profile := models.Profile{UserID: user.ID, FirstName: strings.TrimSpace(in.FirstName)}
		if in.LastName != nil {
			profile.LastName = strings.TrimSpace(*in.LastName)
		}
		profile, err = s.deps.Profiles.Create(ctx, profile)
		if err != nil {
			return err
		}
		account = models.Account{User: user, Profile: profile}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return models.Account{}, conflictError(msgEmailExists)
	}
	if err != nil {
		s.log.Error("create user transaction aborted", zap.String("email", email), zap.Error(err))
		return models.Account{}, transientError("failed to create user", err)
	}

	s.log.Info("user created", zap.String("user_id", account.User.ID.Hex()))
	return account, nil
}

// Login exchanges credentials for a session token. Unknown emails and wrong
// passwords fail identically.
func (s *AccountService) Login(ctx context.Context, email, password string) (LoggedUser, error) {
	user, err := s.deps.Users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		s.deps.Passwords.Verify(password, s.decoyHash)
		return LoggedUser{}, authError(msgInvalidCredentials)
	}
	if err != nil {
		return LoggedUser{}, transientError("failed to log in", err)
	}

	ok, err := s.deps.Passwords.Verify(password, user.Password)
	if err != nil {
		s.log.Warn("stored password hash unreadable", zap.String("user_id", user.ID.Hex()), zap.Error(err))
	}
	if !ok {
		return LoggedUser{}, authError(msgInvalidCredentials)
	}

	if s.deps.Passwords.NeedsRehash(user.Password) {
		if err := s.deps.Users.SetPassword(ctx, user.ID, password); err != nil {
			s.log.Warn("password rehash failed", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		}
	}

	return s.logged(ctx, user)
}

// Me returns the account of userID.
func (s *AccountService) Me(ctx context.Context, userID string) (models.Account, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Account{}, notFoundError(msgUserNotFound)
	}
	user, err := s.deps.Users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Account{}, notFoundError(msgUserNotFound)
	}
	if err != nil {
		return models.Account{}, transientError("failed to load user", err)
	}
	return s.withProfile(ctx, user)
}

// Users lists every profile joined with its user.
func (s *AccountService) Users(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.deps.Profiles.ListAccounts(ctx)
	if err != nil {
		return nil, transientError("failed to list users", err)
	}
	return accounts, nil
}

// UpdateUser changes the caller's own account. userID must come from the
// verified session, never from client input.
func (s *AccountService) UpdateUser(ctx context.Context, userID string, in UpdateUserInput) (models.Account, error) {
	current, err := s.Me(ctx, userID)
	if err != nil {
		return models.Account{}, err
	}

	var newEmail string
	if in.Email != nil {
		newEmail = normalizeEmail(*in.Email)
		if err := validateEmail(newEmail); err != nil {
			return models.Account{}, err
		}
		if newEmail == current.User.Email {
			newEmail = ""
		} else if err := s.ensureEmailFree(ctx, newEmail); err != nil {
			return models.Account{}, err
		}
	}

	patch := models.ProfilePatch{FirstName: in.FirstName, LastName: in.LastName}
	if patch.FirstName != nil && strings.TrimSpace(*patch.FirstName) == "" {
		return models.Account{}, validationError("firstName cannot be empty")
	}

	if in.ProfileImage != nil {
		url, err := s.upload(ctx, *in.ProfileImage)
		if err != nil {
			return models.Account{}, err
		}
		patch.ProfileImage = &url
	}

	id := current.User.ID
	err = s.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if newEmail != "" {
			if err := s.deps.Users.UpdateEmail(ctx, id, newEmail); err != nil {
				return err
			}
		}
		if !patch.Empty() {
			return s.deps.Profiles.Update(ctx, id, patch)
		}
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return models.Account{}, conflictError(msgEmailExists)
	case errors.Is(err, repository.ErrNotFound):
		return models.Account{}, notFoundError(msgUserNotFound)
	case err != nil:
		return models.Account{}, transientError("failed to update user", err)
	}

	return s.Me(ctx, userID)
}

// ChangePassword replaces the caller's password and re-issues a token.
func (s *AccountService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) (LoggedUser, error) {
	current, err := s.Me(ctx, userID)
	if err != nil {
		return LoggedUser{}, err
	}

	ok, err := s.deps.Passwords.Verify(in.CurrentPassword, current.User.Password)
	if err != nil || !ok {
		return LoggedUser{}, authError(msgInvalidPassword)
	}
	if in.NewPassword == "" {
		return LoggedUser{}, validationError("newPassword is required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return LoggedUser{}, validationError(msgPasswordMismatch)
	}

	err = s.deps.Users.SetPassword(ctx, current.User.ID, in.NewPassword)
	if errors.Is(err, repository.ErrNotFound) {
		return LoggedUser{}, notFoundError(msgUserNotFound)
	}
	if err != nil {
		return LoggedUser{}, transientError("failed to change password", err)
	}

	token, err := s.deps.Tokens.Issue(current.User.Email, current.User.ID.Hex())
	if err != nil {
		return LoggedUser{}, transientError("failed to issue token", err)
	}
	return LoggedUser{Account: current, Token: token}, nil
}

// ForgetPassword stores a reset token for email and mails a reset link in
// the background. Mail failures are logged and do not undo the token.
func (s *AccountService) ForgetPassword(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	user, err := s.deps.Users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return !s.opts.RevealUnknownEmail, nil
	}
	if err != nil {
		return false, transientError("failed to request password reset", err)
	}

	token, err := s.deps.Resets.Issue(ctx, user.ID)
	if err != nil {
		return false, transientError("failed to request password reset", err)
	}

	msg, err := resetMessage(user.Email, s.opts.ResetURLBase+"/"+token)
	if err != nil {
		return false, transientError("failed to render reset mail", err)
	}

	userID := user.ID.Hex()
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.MailTimeout)
		defer cancel()
		if err := s.deps.Mailer.Send(ctx, msg); err != nil {
			s.log.Warn("reset mail not delivered", zap.String("user_id", userID), zap.Error(err))
		}
	})
	return true, nil
}

// ResetPassword redeems a reset token.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) (string, error) {
	if password == "" {
		return "", validationError("password is required")
	}
	user, err := s.deps.Resets.Redeem(ctx, token, password)
	if err != nil {
		return "", err
	}
	s.log.Info("password reset", zap.String("user_id", user.ID.Hex()))
	return msgPasswordUpdated, nil
}

// Posts returns the posts authored by userID.
func (s *AccountService) Posts(ctx context.Context, userID primitive.ObjectID) ([]models.Post, error) {
	posts, err := s.deps.Posts.ListByAuthor(ctx, userID)
	if err != nil {
		return nil, transientError("failed to load posts", err)
	}
	return posts, nil
}

func (s *AccountService) logged(ctx context.Context, user models.User) (LoggedUser, error) {
	account, err := s.withProfile(ctx, user)
	if err != nil {
		return LoggedUser{}, err
	}
	token, err := s.deps.Tokens.Issue(user.Email, user.ID.Hex())
	if err != nil {
		return LoggedUser{}, transientError("failed to issue token", err)
	}
	return LoggedUser{Account: account, Token: token}, nil
}

func (s *AccountService) withProfile(ctx context.Context, user models.User) (models.Account, error) {
	profile, err := s.deps.Profiles.FindByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return models.Account{}, transientError("failed to load profile", err)
	}
	return models.Account{User: user, Profile: profile}, nil
}

func (s *AccountService) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.deps.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return conflictError(msgEmailExists)
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return transientError("failed to check email", err)
	}
}

func (s *AccountService) upload(ctx context.Context, file Upload) (string, error) {
	if s.deps.Uploader == nil {
		return "", validationError(ErrUploadsDisabled.Error())
	}
	url, err := s.deps.Uploader.Upload(ctx, file, s.opts.UploadFolder)
	if err != nil {
		s.log.Error("profile image upload failed", zap.String("filename", file.Filename), zap.Error(err))
		return "", transientError("failed to upload profile image", err)
	}
	return url, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email is invalid")
	}
	return nil
}
