package authprovider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server/auth"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// Local is a self-hosted Provider: accounts live in the users table with
// bcrypt password hashes, access tokens are HS256 JWTs signed with the same
// secret the data store verifies, and refresh tokens are opaque random
// strings rotated on every use.
//
// Local has no email pipeline: accounts are usable right after SignUp and
// ResendConfirmation does nothing.
type Local struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	logger                       logging.Logger
	now                          func() time.Time
}

// NewLocal constructs a Local provider.
func NewLocal(db *sql.DB, m repomanager.RepositoryManager, secret string, accessTTL, refreshTTL time.Duration, logger logging.Logger) *Local {
	return &Local{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(secret),
		accessTokenValidityDuration:  accessTTL,
		refreshTokenValidityDuration: refreshTTL,
		logger:                       logger,
		now:                          time.Now,
	}
}

func (l *Local) SignUp(ctx context.Context, email, password, redirectURL string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password should be at least 6 characters", common.ErrorValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}

	_, err = l.repomanager.Users(l.db).Create(ctx, &models.User{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return err
		}
		return unavailable(err)
	}
	l.logger.Info(ctx, "local account created", "email", email, "redirect", redirectURL)
	return nil
}

func (l *Local) ResendConfirmation(ctx context.Context, email, redirectURL string) error {
	return nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	user, err := l.repomanager.Users(l.db).GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, unavailable(err)
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, common.ErrInvalidCredentials
	}
	return l.generateTokens(ctx, user, l.db)
}

// Refresh validates refreshToken, rotates it transactionally and returns a
// fresh token pair. A token that was already rotated by a concurrent call
// is reported as invalid.
func (l *Local) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	token, err := l.repomanager.RefreshTokens(l.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, unavailable(err)
	}
	if token.Expired(l.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	user, err := l.repomanager.Users(l.db).GetUserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, unavailable(err)
	}

	var out *Tokens
	err = dbx.WithTx(ctx, l.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := l.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}
		var genErr error
		out, genErr = l.generateTokens(ctx, user, tx)
		return genErr
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			return nil, err
		}
		return nil, unavailable(err)
	}
	return out, nil
}

// SignOut revokes every refresh token of the access token's owner.
// An expired access token is still accepted for this purpose.
func (l *Local) SignOut(ctx context.Context, accessToken string) error {
	userID, err := auth.SubjectIgnoringExpiry(accessToken, l.jwtSecret)
	if err != nil {
		return err
	}
	if err := l.repomanager.RefreshTokens(l.db).DeleteForUser(ctx, userID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (l *Local) generateTokens(ctx context.Context, user *models.User, tx dbx.DBTX) (*Tokens, error) {
	now := l.now()
	access, err := auth.GenerateToken(user.ID, user.Email, l.jwtSecret, l.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := l.repomanager.RefreshTokens(tx).Create(ctx, user.ID, refresh, now.Add(l.refreshTokenValidityDuration)); err != nil {
		return nil, unavailable(err)
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(l.accessTokenValidityDuration),
		UserID:       user.ID,
		Email:        user.Email,
	}, nil
}
