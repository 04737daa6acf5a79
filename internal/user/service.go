package user

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/auth"
	"learncode/internal/db"
	"learncode/internal/logger"
	"learncode/internal/session"
	"learncode/internal/wallet"
)

// Sessions is the part of the session registry the user service drives.
type Sessions interface {
	Login(ctx context.Context, userID int, token string) (*session.Session, error)
	Expire(ctx context.Context, token string) error
	ExpireAll(ctx context.Context, userID int) (int64, error)
	ListActive(ctx context.Context, userID int) ([]session.Session, error)
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	// OAuthLogin finds or creates the user for a verified provider identity
	// and opens a session.
	OAuthLogin(ctx context.Context, req OAuthRequest) (*AuthResponse, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, userID int) (int64, error)
	GetProfile(ctx context.Context, userID int) (*Profile, error)
	ListSessions(ctx context.Context, userID int) ([]session.Session, error)
}

type service struct {
	repo      Repository
	wallets   wallet.Repository
	sessions  Sessions
	tx        db.TxRunner
	jwtSecret string
	tokenTTL  time.Duration
}

func NewService(repo Repository, wallets wallet.Repository, sessions Sessions, tx db.TxRunner, jwtSecret string, tokenTTL time.Duration) Service {
	return &service{
		repo:      repo,
		wallets:   wallets,
		sessions:  sessions,
		tx:        tx,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.New(apperr.Conflict, "email already registered")
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var u *User
	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		u, err = s.repo.WithTx(tx).Create(ctx, strings.TrimSpace(req.Name), email, passwordHash, auth.RoleMember)
		if err != nil {
			return err
		}
		_, err = s.wallets.WithTx(tx).UpsertWallet(ctx, u.ID, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("user registered", "user_id", u.ID)
	return s.openSession(ctx, u)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	u, err := s.repo.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, errInvalidCredentials()
		}
		return nil, err
	}

	if !u.PasswordHash.Valid || !auth.CheckPassword(u.PasswordHash.String, req.Password) {
		return nil, errInvalidCredentials()
	}

	return s.openSession(ctx, u)
}

func (s *service) OAuthLogin(ctx context.Context, req OAuthRequest) (*AuthResponse, error) {
	u, err := s.findOrCreateOAuthUser(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, u)
}

func (s *service) findOrCreateOAuthUser(ctx context.Context, req OAuthRequest) (*User, error) {
	provider := LinkedProvider{Kind: req.Provider, ProviderID: req.ProviderID}
	email := normalizeEmail(req.Email)

	u, err := s.repo.FindByProvider(ctx, provider)
	if err == nil {
		return u, nil
	}
	if !apperr.IsKind(err, apperr.NotFound) {
		return nil, err
	}

	u, err = s.repo.FindByEmail(ctx, email)
	if err == nil {
		if linked := u.linkedID(provider.Kind); linked != "" && linked != provider.ProviderID {
			logger.Warn("provider relink refused", "user_id", u.ID, "provider", string(provider.Kind))
			return nil, apperr.New(apperr.Conflict, "account already linked to a different identity")
		}
		logger.Info("provider linked to existing user", "user_id", u.ID, "provider", string(provider.Kind))
		return s.repo.LinkProvider(ctx, u.ID, provider)
	}
	if !apperr.IsKind(err, apperr.NotFound) {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	err = s.tx.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		u, err = s.repo.WithTx(tx).CreateLinked(ctx, name, email, auth.RoleMember, provider)
		if err != nil {
			return err
		}
		_, err = s.wallets.WithTx(tx).UpsertWallet(ctx, u.ID, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("user registered via provider", "user_id", u.ID, "provider", string(provider.Kind))
	return u, nil
}

func (s *service) openSession(ctx context.Context, u *User) (*AuthResponse, error) {
	token, err := auth.GenerateToken(u.ID, u.Email, u.Role, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Login(ctx, u.ID, token)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: *u}, nil
}

func (s *service) Logout(ctx context.Context, token string) error {
	return s.sessions.Expire(ctx, token)
}

func (s *service) LogoutAll(ctx context.Context, userID int) (int64, error) {
	return s.sessions.ExpireAll(ctx, userID)
}

func (s *service) GetProfile(ctx context.Context, userID int) (*Profile, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: *u, Providers: u.Providers()}, nil
}

func (s *service) ListSessions(ctx context.Context, userID int) ([]session.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func errInvalidCredentials() error {
	return apperr.New(apperr.Unauthorized, "invalid email or password")
}
