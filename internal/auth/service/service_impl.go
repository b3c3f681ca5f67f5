package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	auditdomain "github.com/smallbiznis/licenseboard/internal/audit/domain"
	"github.com/smallbiznis/licenseboard/internal/auth/domain"
	"github.com/smallbiznis/licenseboard/internal/auth/password"
	"github.com/smallbiznis/licenseboard/internal/auth/session"
	"github.com/smallbiznis/licenseboard/internal/clock"
	"github.com/smallbiznis/licenseboard/internal/config"
	obscontext "github.com/smallbiznis/licenseboard/internal/observability/context"
	"github.com/smallbiznis/licenseboard/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Sessions *session.Manager
	Guard    *ratelimit.Guard    `optional:"true"`
	Audit    auditdomain.Service `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	sessions *session.Manager
	guard    *ratelimit.Guard
	audit    auditdomain.Service
	accounts map[string]domain.Account
	// dummyHash keeps unknown usernames on the same verify cost as known ones.
	dummyHash string
}

func New(p Params) (domain.Service, error) {
	accounts, err := BuildAccounts(p.Config.Accounts)
	if err != nil {
		return nil, err
	}
	dummy, err := password.Hash("licenseboard-dummy")
	if err != nil {
		return nil, err
	}
	return &Service{
		log:       p.Log.Named("auth.service"),
		clock:     p.Clock,
		sessions:  p.Sessions,
		guard:     p.Guard,
		audit:     p.Audit,
		accounts:  accounts,
		dummyHash: dummy,
	}, nil
}

// BuildAccounts hashes plain-text passwords once at startup. Accounts with an empty
// username or password are disabled.
func BuildAccounts(cfg config.AccountsConfig) (map[string]domain.Account, error) {
	accounts := make(map[string]domain.Account, 2)
	add := func(username, secret string, role domain.Role, companyID, partnerID *int64) error {
		username = strings.TrimSpace(username)
		if username == "" || secret == "" {
			return nil
		}
		key := strings.ToLower(username)
		if _, exists := accounts[key]; exists {
			return fmt.Errorf("duplicate account username %q", username)
		}
		hash := secret
		if !password.IsHash(secret) {
			var err error
			if hash, err = password.Hash(secret); err != nil {
				return err
			}
		}
		accounts[key] = domain.Account{
			Username:     username,
			DisplayName:  displayName(username),
			Role:         role,
			PasswordHash: hash,
			CompanyID:    companyID,
			PartnerID:    partnerID,
		}
		return nil
	}

	if err := add(cfg.AdminUsername, cfg.AdminPassword, domain.RoleAdmin, nil, nil); err != nil {
		return nil, err
	}
	if err := add(cfg.ViewerUsername, cfg.ViewerPassword, domain.RoleViewer, cfg.ViewerCompanyID, cfg.ViewerPartnerID); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if s.guard != nil {
		result, err := s.guard.AllowLogin(ctx, username)
		if err != nil {
			s.log.Warn("login rate limit unavailable", zap.Error(err))
		} else if !result.Allowed {
			s.log.Warn("login throttled",
				zap.String("username", username),
				zap.Duration("retry_after", result.RetryAfter),
			)
			return nil, domain.ErrTooManyAttempts
		}
	}

	account, ok := s.accounts[strings.ToLower(username)]
	hash := s.dummyHash
	if ok {
		hash = account.PasswordHash
	}
	if !password.Verify(req.Password, hash) || !ok {
		s.log.Info("login rejected", zap.String("username", username), zap.String("ip", req.IPAddress))
		return nil, domain.ErrInvalidCredentials
	}

	now := s.clock.Now()
	token, expiresAt, err := s.sessions.Issue(account.Username, string(account.Role), now)
	if err != nil {
		return nil, err
	}

	principal := principalFor(account)
	principal.ExpiresAt = expiresAt
	s.record(obscontext.WithActor(ctx, string(account.Role), account.Username), "auth.login", account.Username, req.IPAddress)

	return &domain.LoginResult{
		Principal: principal,
		RawToken:  token,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout validates the token and records the event. Tokens are stateless, so clearing
// the cookie ends the session.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	principal, err := s.Authenticate(ctx, rawToken)
	if err != nil {
		return err
	}
	s.record(obscontext.WithActor(ctx, string(principal.Role), principal.Username), "auth.logout", principal.Username, "")
	return nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Principal, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, domain.ErrUnauthenticated
	}

	claims, err := s.sessions.Parse(rawToken, s.clock.Now())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrSessionExpired
		}
		return nil, domain.ErrInvalidSession
	}

	account, ok := s.accounts[strings.ToLower(claims.Subject)]
	if !ok || string(account.Role) != claims.Role {
		return nil, domain.ErrInvalidSession
	}

	principal := principalFor(account)
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return &principal, nil
}

func (s *Service) CurrentUser(ctx context.Context) (*domain.Principal, error) {
	principal, ok := domain.PrincipalFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return &principal, nil
}

func (s *Service) record(ctx context.Context, action, username, ip string) {
	if s.audit == nil {
		return
	}
	metadata := map[string]any{"username": username}
	if ip != "" {
		metadata["ip_address"] = ip
	}
	if err := s.audit.AuditLog(ctx, action, "session", nil, metadata); err != nil {
		s.log.Warn("failed to audit auth event", zap.String("action", action), zap.Error(err))
	}
}

func principalFor(account domain.Account) domain.Principal {
	return domain.Principal{
		Username:    account.Username,
		DisplayName: account.DisplayName,
		Role:        account.Role,
		Permissions: append([]domain.Permission(nil), domain.RolePermissions[account.Role]...),
		CompanyID:   account.CompanyID,
		PartnerID:   account.PartnerID,
	}
}

func displayName(username string) string {
	if username == "" {
		return ""
	}
	return strings.ToUpper(username[:1]) + username[1:]
}
