package application

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-friendship/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-friendship/internal/domain/repository"
	"github.com/oksasatya/go-ddd-friendship/pkg/apperror"
	"github.com/oksasatya/go-ddd-friendship/pkg/helpers"
	"github.com/oksasatya/go-ddd-friendship/pkg/sanitize"
)

var (
	ErrEmailRequired      = apperror.New(apperror.CodeValidation, "The Email field must be set")
	ErrEmailTaken         = apperror.New(apperror.CodeValidation, "A user with that email already exists.")
	ErrInvalidGender      = apperror.New(apperror.CodeValidation, "Gender must be one of Male, Female, Other.")
	ErrInvalidCredentials = apperror.New(apperror.CodeValidation, "Invalid credentials")
	ErrInvalidSession     = apperror.New(apperror.CodeUnauthorized, "Invalid or expired session.")
	ErrUserNotFound       = apperror.New(apperror.CodeNotFound, "User not found.")
	ErrAvatarUnavailable  = apperror.New(apperror.CodeInternal, "Avatar storage is not configured.")
)

// AvatarStore persists an uploaded image and returns its URL.
// helpers.GCSUploader implements it.
type AvatarStore interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

type UserService struct {
	Repo    repo.UserRepository
	Index   repo.UserIndex // optional
	JWT     *helpers.JWTManager
	Avatars AvatarStore   // optional
	Redis   *redis.Client // optional; sessions are not tracked without it
	Logger  *logrus.Logger

	// indexReady is set by a complete Reindex and cleared by any failed
	// index write. Search only trusts the index while it is set.
	indexReady atomic.Bool
}

type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

type CreateUserInput struct {
	Email       string
	Password    string
	Name        string
	Gender      entity.Gender
	PhoneNumber string
}

// UpdateProfileInput holds optional fields; nil means unchanged.
type UpdateProfileInput struct {
	Name        *string
	Gender      *entity.Gender
	PhoneNumber *string
}

func NewUserService(r repo.UserRepository, index repo.UserIndex, jwt *helpers.JWTManager, avatars AvatarStore, rdb *redis.Client, logger *logrus.Logger) *UserService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserService{Repo: r, Index: index, JWT: jwt, Avatars: avatars, Redis: rdb, Logger: logger}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) persistence(err error, msg string, fields logrus.Fields) error {
	s.Logger.WithFields(fields).WithError(err).Error(msg)
	return apperror.Wrap(err, ErrPersistence.Code, ErrPersistence.Message)
}

// CreateUser registers a regular account.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	return s.create(ctx, in, false)
}

// CreateSuperuser registers an account with every administrative flag set.
func (s *UserService) CreateSuperuser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	return s.create(ctx, in, true)
}

func (s *UserService) create(ctx context.Context, in CreateUserInput, super bool) (*entity.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !in.Gender.Valid() {
		return nil, ErrInvalidGender
	}

	u := &entity.User{
		Email:       email,
		Name:        sanitize.Text(in.Name),
		Gender:      in.Gender,
		PhoneNumber: sanitize.Digits(in.PhoneNumber),
		IsStaff:     super,
		IsSuperuser: super,
		IsAdmin:     super,
	}
	// An empty password leaves the account without a usable credential.
	if in.Password != "" {
		hash, err := helpers.HashPassword(in.Password)
		if err != nil {
			s.Logger.WithError(err).Error("hash password failed")
			return nil, apperror.Wrap(err, apperror.CodeInternal, "An unexpected error occurred.")
		}
		u.Password = hash
	}

	if err := s.Repo.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, s.persistence(err, "create user failed", logrus.Fields{"email": email})
	}

	s.Logger.WithFields(logrus.Fields{"user_id": u.ID, "superuser": super}).Info("user created")
	s.indexUser(ctx, u)
	return u, nil
}

// Authenticate validates email/password and returns the user without issuing tokens.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.Repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.Logger.WithError(err).Error("load user for authentication failed")
		}
		return nil, ErrInvalidCredentials
	}
	if !helpers.CompareHashAndPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// IssueTokens generates access/refresh tokens and records a session in Redis.
func (s *UserService) IssueTokens(ctx context.Context, u *entity.User) (TokenPair, error) {
	sid := uuid.NewString()
	pair, err := s.signPair(u.ID, sid)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", u.ID).Error("generate tokens failed")
		return TokenPair{}, apperror.Wrap(err, apperror.CodeInternal, "An unexpected error occurred.")
	}

	if s.Redis != nil {
		fields := map[string]any{
			"user_id":    u.ID,
			"email":      u.Email,
			"name":       u.Name,
			"avatar_url": u.AvatarURL,
			"sid":        sid,
			"logged_in":  true,
			"created_at": nowRFC3339(),
		}
		key := helpers.SessionKey(u.ID)
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, helpers.SessionTTL)
		if _, rErr := pipe.Exec(ctx); rErr != nil {
			s.Logger.WithError(rErr).WithField("key", key).Warn("redis pipeline failed")
		}
	}
	return pair, nil
}

func (s *UserService) signPair(userID int64, sid string) (TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(userID, sid)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(userID, sid)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*entity.User, TokenPair, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		s.Logger.WithField("email", normalizeEmail(email)).Warn("login failed")
		return nil, TokenPair{}, err
	}
	pair, err := s.IssueTokens(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.Logger.WithField("user_id", u.ID).Info("user logged in")
	return u, pair, nil
}

// Refresh rotates the session id and returns a new token pair.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (TokenPair, int64, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, 0, ErrInvalidSession
	}
	u, err := s.Repo.GetByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, 0, ErrInvalidSession
	}
	key := helpers.SessionKey(u.ID)
	if s.Redis != nil {
		data, rErr := s.Redis.HGetAll(ctx, key).Result()
		if rErr != nil || len(data) == 0 || data["sid"] != claims.SessionID {
			return TokenPair{}, 0, ErrInvalidSession
		}
	}

	sid := uuid.NewString()
	pair, err := s.signPair(u.ID, sid)
	if err != nil {
		return TokenPair{}, 0, apperror.Wrap(err, apperror.CodeInternal, "An unexpected error occurred.")
	}
	if s.Redis != nil {
		pipe := s.Redis.Pipeline()
		pipe.HSet(ctx, key, map[string]any{
			"sid":        sid,
			"updated_at": nowRFC3339(),
		})
		pipe.Expire(ctx, key, helpers.SessionTTL)
		if _, rErr := pipe.Exec(ctx); rErr != nil {
			s.Logger.WithError(rErr).WithField("key", key).Warn("redis pipeline failed")
		}
	}
	return pair, u.ID, nil
}

// Logout drops the session so outstanding tokens stop validating.
func (s *UserService) Logout(ctx context.Context, userID int64) error {
	if s.Redis == nil {
		return nil
	}
	if err := s.Redis.Del(ctx, helpers.SessionKey(userID)).Err(); err != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Warn("drop session failed")
		return apperror.Wrap(err, apperror.CodeInternal, "An unexpected error occurred.")
	}
	return nil
}

func (s *UserService) GetProfile(ctx context.Context, userID int64) (*entity.User, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, s.persistence(err, "load profile failed", logrus.Fields{"user_id": userID})
	}
	return u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*entity.User, error) {
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		u.Name = sanitize.Text(*in.Name)
	}
	if in.Gender != nil {
		if !in.Gender.Valid() {
			return nil, ErrInvalidGender
		}
		u.Gender = *in.Gender
	}
	if in.PhoneNumber != nil {
		u.PhoneNumber = sanitize.Digits(*in.PhoneNumber)
	}
	if err := s.save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UploadAvatar stores the image under avatars/<user id>/ and points the
// profile at it.
func (s *UserService) UploadAvatar(ctx context.Context, userID int64, r io.Reader, filename, contentType string) (string, error) {
	if s.Avatars == nil {
		return "", ErrAvatarUnavailable
	}
	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := path.Join("avatars", strconv.FormatInt(userID, 10), uuid.NewString()+ext)
	url, err := s.Avatars.Upload(ctx, objectPath, contentType, r)
	if err != nil {
		s.Logger.WithError(err).WithField("object", objectPath).Error("avatar upload failed")
		return "", apperror.Wrap(err, apperror.CodeInternal, "An unexpected error occurred.")
	}

	u.AvatarURL = url
	if err := s.save(ctx, u); err != nil {
		return "", err
	}
	return url, nil
}

// save writes u, mirrors the display fields into the session hash and
// re-indexes the user.
func (s *UserService) save(ctx context.Context, u *entity.User) error {
	if err := s.Repo.Update(ctx, u); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return s.persistence(err, "update user failed", logrus.Fields{"user_id": u.ID})
	}

	if s.Redis != nil {
		key := helpers.SessionKey(u.ID)
		// only refresh a live session, keeping its TTL
		if ttl, tErr := s.Redis.TTL(ctx, key).Result(); tErr == nil && ttl > 0 {
			pipe := s.Redis.Pipeline()
			pipe.HSet(ctx, key, map[string]any{
				"name":       u.Name,
				"avatar_url": u.AvatarURL,
				"updated_at": nowRFC3339(),
			})
			pipe.Expire(ctx, key, ttl)
			if _, pErr := pipe.Exec(ctx); pErr != nil {
				s.Logger.WithError(pErr).WithField("key", key).Warn("redis pipeline failed")
			}
		}
	}

	s.indexUser(ctx, u)
	return nil
}

func (s *UserService) indexUser(ctx context.Context, u *entity.User) {
	if s.Index == nil {
		return
	}
	if err := s.Index.Index(ctx, u); err != nil {
		s.indexReady.Store(false)
		s.Logger.WithError(err).WithField("user_id", u.ID).Warn("es index failed, search uses the database until the next reindex")
	}
}

// IndexReady reports whether Search is currently answered by the index.
func (s *UserService) IndexReady() bool {
	return s.Index != nil && s.indexReady.Load()
}

// Reindex copies every stored user into the search index and, on success,
// lets Search use it. It returns the number of users written.
func (s *UserService) Reindex(ctx context.Context) (int, error) {
	if s.Index == nil {
		return 0, nil
	}
	s.indexReady.Store(false)
	users, err := s.Repo.Search(ctx, "")
	if err != nil {
		return 0, s.persistence(err, "list users for reindex failed", nil)
	}
	for i := range users {
		if err := s.Index.Index(ctx, &users[i]); err != nil {
			s.Logger.WithError(err).WithField("user_id", users[i].ID).Warn("reindex stopped")
			return i, err
		}
	}
	s.indexReady.Store(true)
	s.Logger.WithField("users", len(users)).Info("search index rebuilt")
	return len(users), nil
}

// Search matches the exact email or a case-insensitive substring of the
// name, ordered by id. The index answers only after a complete Reindex;
// the database answers before that, when the index is unreachable, and
// when the index result would be truncated.
func (s *UserService) Search(ctx context.Context, query string) ([]entity.User, error) {
	query = strings.TrimSpace(query)
	if s.IndexReady() {
		users, err := s.Index.Search(ctx, query)
		if err == nil {
			return users, nil
		}
		s.Logger.WithError(err).Warn("es search failed, falling back to database")
	}
	users, err := s.Repo.Search(ctx, query)
	if err != nil {
		return nil, s.persistence(err, "search users failed", logrus.Fields{"query": query})
	}
	return users, nil
}
