package accessguard

import (
	"context"
	"errors"
	"time"

	"github.com/ansiblecluster/core/internal/apierr"
	"github.com/ansiblecluster/core/internal/authz"
	"github.com/ansiblecluster/core/internal/model"
	"github.com/ansiblecluster/core/internal/pkg/logger"
)

var ErrNoPrincipal = errors.New("accessguard: no principal resolved")

// UserStore is the slice of the storage layer the guard needs to resolve
// API-token and session principals into a user's roles.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// TokenStore resolves a raw token's hash to its stored entry and records
// last-used time; a disabled user's tokens must be rejected by the caller.
type TokenStore interface {
	GetAPITokenByHash(ctx context.Context, hash string) (*model.APIToken, error)
	TouchAPIToken(ctx context.Context, id string, when time.Time) error
}

// WorkerStore lets the guard confirm a worker id named in a request
// actually exists before trusting it as a principal.
type WorkerStore interface {
	WorkerExists(ctx context.Context, id string) bool
}

// SessionResolver maps a browser session identifier to a user id. Session
// and cookie mechanics themselves are the host's concern (spec §1
// non-goals); the guard only needs this narrow hook to fold a resolved
// session into the same principal shape as every other auth method.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (userID string, ok bool)
}

// Guard resolves the request principal and evaluates required permissions
// against the Permission Engine, gating every non-public operation (C2).
type Guard struct {
	log     *logger.Logger
	engine  *authz.Engine
	users   UserStore
	tokens  TokenStore
	workers WorkerStore
	session SessionResolver
	Lockout *LoginAttemptTracker
}

func NewGuard(log *logger.Logger, engine *authz.Engine, users UserStore, tokens TokenStore, workers WorkerStore, session SessionResolver) *Guard {
	return &Guard{
		log:     log.With("component", "accessguard"),
		engine:  engine,
		users:   users,
		tokens:  tokens,
		workers: workers,
		session: session,
		Lockout: NewLoginAttemptTracker(5, 15*time.Minute),
	}
}

// Credentials is whatever the transport layer extracted from the request;
// exactly one of these should be set.
type Credentials struct {
	SessionID string
	APIToken  string
	WorkerID  string
}

// ResolvePrincipal applies the precedence from spec §4.2: session, then API
// token, then worker identity, then anonymous.
func (g *Guard) ResolvePrincipal(ctx context.Context, creds Credentials) (model.Principal, error) {
	if creds.SessionID != "" && g.session != nil {
		if userID, ok := g.session.ResolveSession(ctx, creds.SessionID); ok {
			if p, err := g.principalForUser(ctx, userID, model.PrincipalUser); err == nil {
				return p, nil
			}
		}
	}

	if creds.APIToken != "" && g.tokens != nil {
		hash := HashToken(creds.APIToken)
		token, err := g.tokens.GetAPITokenByHash(ctx, hash)
		if err == nil && token != nil && !token.Expired(time.Now()) {
			p, err := g.principalForUser(ctx, token.UserID, model.PrincipalAPIToken)
			if err == nil {
				_ = g.tokens.TouchAPIToken(ctx, token.ID, time.Now())
				return p, nil
			}
		}
	}

	if creds.WorkerID != "" && g.workers != nil {
		if g.workers.WorkerExists(ctx, creds.WorkerID) {
			return model.Principal{Kind: model.PrincipalWorker, WorkerID: creds.WorkerID}, nil
		}
	}

	return model.Principal{Kind: model.PrincipalAnonymous}, ErrNoPrincipal
}

func (g *Guard) principalForUser(ctx context.Context, userID string, kind model.PrincipalKind) (model.Principal, error) {
	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil || user == nil || !user.Enabled {
		return model.Principal{}, ErrNoPrincipal
	}
	perms := g.engine.ResolvePermissions(ctx, user.Roles)
	return model.Principal{
		Kind:        kind,
		Username:    user.Username,
		UserID:      user.ID,
		Roles:       user.Roles,
		Permissions: perms,
	}, nil
}

// CheckAccess maps a resolved principal and a required permission onto the
// 401/403/423 taxonomy from spec §4.2/§7. A nil error means the caller is
// authorized.
func (g *Guard) CheckAccess(ctx context.Context, principal model.Principal, required string) error {
	if principal.IsAnonymous() {
		return apierr.Unauthenticated(ErrNoPrincipal)
	}
	if principal.Kind == model.PrincipalUser && g.Lockout.IsLocked(principal.Username) {
		return apierr.Locked(errors.New("account locked"))
	}
	if !g.engine.CheckPermission(ctx, principal.Roles, required) {
		return apierr.Forbidden(errors.New("permission denied: " + required))
	}
	return nil
}
