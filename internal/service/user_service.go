package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shutter/internal/blob"
	"shutter/internal/events"
	"shutter/internal/models"
	"shutter/internal/observability"
	"shutter/internal/repository"
	"shutter/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo       repository.UserRepository
	auth           *AuthService
	blobs          blob.Store
	avatar         blob.Normalizer
	maxAvatarBytes int
	events         events.Emitter
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func NewUserService(
	userRepo repository.UserRepository,
	auth *AuthService,
	blobs blob.Store,
	maxAvatarBytes int,
	emitter events.Emitter,
) *UserService {
	return &UserService{
		userRepo:       userRepo,
		auth:           auth,
		blobs:          blobs,
		avatar:         blob.AvatarNormalizer,
		maxAvatarBytes: maxAvatarBytes,
		events:         emitterOrNoop(emitter),
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if err := s.ensureUnused(ctx, s.userRepo.GetByUsername, in.Username, "Username is already taken"); err != nil {
		return nil, err
	}
	if err := s.ensureUnused(ctx, s.userRepo.GetByEmail, in.Email, "Email is already registered"); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
	}
	// The unique indexes still decide races the pre-checks above cannot see.
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, events.UserRegistered{UserID: user.ID, Username: user.Username})

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *UserService) ensureUnused(
	ctx context.Context,
	lookup func(context.Context, string) (*models.User, error),
	value, conflictMsg string,
) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return models.NewConflictError(conflictMsg)
	case models.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// Login authenticates by email. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewUnauthorizedError("Invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) GetProfile(ctx context.Context, userID, viewerID uint) (*models.UserProfile, error) {
	return s.userRepo.Profile(ctx, userID, viewerID)
}

func (s *UserService) GetProfileByUsername(ctx context.Context, username string, viewerID uint) (*models.UserProfile, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.userRepo.Profile(ctx, user.ID, viewerID)
}

// UploadAvatar normalizes the image to a square WebP, stores it and points
// the profile at it. The previous avatar is removed best-effort.
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, data []byte) (string, error) {
	if len(data) == 0 {
		return "", models.NewValidationError("Avatar image is required")
	}
	if s.maxAvatarBytes > 0 && len(data) > s.maxAvatarBytes {
		return "", models.NewValidationError(fmt.Sprintf("Avatar exceeds maximum size of %d bytes", s.maxAvatarBytes))
	}
	if s.blobs == nil {
		return "", models.NewInternalError(errors.New("blob store not configured"))
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	obj, err := s.avatar.Normalize(data)
	if err != nil {
		if errors.Is(err, blob.ErrUnsupportedImage) {
			return "", models.NewValidationError("Avatar must be a JPEG, PNG, GIF or WebP image")
		}
		return "", models.NewInternalError(err)
	}
	obj.Prefix = "avatars"

	url, err := s.blobs.Upload(ctx, obj)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if err := s.userRepo.UpdateProfileImage(ctx, userID, url); err != nil {
		deleteBlob(ctx, s.blobs, url)
		return "", err
	}

	if user.ProfileImageURL != "" {
		deleteBlob(ctx, s.blobs, user.ProfileImageURL)
	}
	s.events.Emit(ctx, events.AvatarUploaded{UserID: userID, URL: url})
	return url, nil
}

// ToggleFollow follows or unfollows target and reports the resulting state.
func (s *UserService) ToggleFollow(ctx context.Context, followerID, followingID uint) (bool, error) {
	if followerID == followingID {
		return false, models.NewValidationError("You cannot follow yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, followingID); err != nil {
		return false, err
	}

	following, err := s.userRepo.ToggleFollow(ctx, followerID, followingID)
	if err != nil {
		return false, err
	}
	s.events.Emit(ctx, events.UserFollowed{FollowerID: followerID, FollowingID: followingID, Following: following})
	return following, nil
}

func (s *UserService) Followers(ctx context.Context, userID uint, page, size int) (*models.UserPage, error) {
	return s.edgePage(ctx, userID, page, size, s.userRepo.Followers)
}

func (s *UserService) Following(ctx context.Context, userID uint, page, size int) (*models.UserPage, error) {
	return s.edgePage(ctx, userID, page, size, s.userRepo.Following)
}

func (s *UserService) edgePage(
	ctx context.Context,
	userID uint,
	page, size int,
	list func(context.Context, uint, int, int) ([]models.User, int64, error),
) (*models.UserPage, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	page, size = normalizePage(page, size)
	users, total, err := list(ctx, userID, size, offset(page, size))
	if err != nil {
		return nil, err
	}
	return &models.UserPage{Users: userSummaries(users), Page: page, Size: size, Total: total}, nil
}

// deleteBlob removes url from the store, logging failures. URLs the store
// did not issue (seeded or external avatars) are left alone.
func deleteBlob(ctx context.Context, store blob.Store, url string) {
	if store == nil || url == "" {
		return
	}
	if err := store.Delete(ctx, url); err != nil && !errors.Is(err, blob.ErrForeignURL) {
		observability.Logger.WarnContext(ctx, "blob delete failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
	}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, events.Event) {}

func emitterOrNoop(e events.Emitter) events.Emitter {
	if e == nil {
		return noopEmitter{}
	}
	return e
}
