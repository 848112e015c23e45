package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"geografica/internal/model"
	"geografica/internal/pubsub"
	"geografica/internal/session"
)

// AuthClient handles login, registration and the persisted session
type AuthClient struct {
	api    *Client
	store  session.Store
	logger *zap.Logger

	mu    sync.RWMutex
	token string
	user  *model.User

	currentUser *pubsub.Broadcaster[*model.User]
	now         func() time.Time
}

// NewAuthClient restores the persisted session and registers itself as the
// token source of the base client.
func NewAuthClient(ctx context.Context, api *Client, store session.Store, logger *zap.Logger) (*AuthClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &AuthClient{
		api:    api,
		store:  store,
		logger: logger,
		now:    time.Now,
	}

	sess, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if sess != nil {
		a.token = sess.Token
		a.user = sess.User
		logger.Info("Session restored", zap.Bool("has_user", sess.User != nil))
	}

	a.currentUser = pubsub.NewBehavior[*model.User]("current_user", copyUser(a.user), logger)
	api.SetTokenSource(a)
	return a, nil
}

// Login authenticates against POST /auth/login and persists the session
func (a *AuthClient) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := a.api.do(ctx, http.MethodPost, "/auth/login", nil, req, &resp); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.token = resp.AccessToken
	user := resp.User
	a.user = &user
	a.mu.Unlock()

	if err := a.store.Save(ctx, &session.Session{Token: resp.AccessToken, User: &user}); err != nil {
		a.logger.Warn("Failed to persist session", zap.Error(err))
	}

	a.currentUser.Publish(copyUser(&user))
	a.logger.Info("Guardian logged in", zap.Int64("user_id", user.ID))
	return &resp, nil
}

// Register creates a guardian account via POST /tutores
func (a *AuthClient) Register(ctx context.Context, req model.RegisterTutorRequest) (*model.User, error) {
	var user model.User
	if err := a.api.do(ctx, http.MethodPost, "/tutores", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout clears the persisted session and the current user
func (a *AuthClient) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.token = ""
	a.user = nil
	a.mu.Unlock()

	a.currentUser.Publish(nil)

	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	a.logger.Info("Guardian logged out")
	return nil
}

// Token returns the bearer token, or "" when logged out
func (a *AuthClient) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// IsAuthenticated reports whether a non-expired token is held
func (a *AuthClient) IsAuthenticated() bool {
	token := a.Token()
	return token != "" && !session.Expired(token, a.now())
}

// TokenExpiry returns the exp claim of the current token
func (a *AuthClient) TokenExpiry() (time.Time, error) {
	return session.TokenExpiry(a.Token())
}

// CurrentUser returns a copy of the logged in guardian, or nil
func (a *AuthClient) CurrentUser() *model.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyUser(a.user)
}

// WatchCurrentUser streams the current user, starting with the present value
func (a *AuthClient) WatchCurrentUser(buffer int) (<-chan *model.User, func()) {
	return a.currentUser.Subscribe(buffer)
}

// Close ends all current user subscriptions
func (a *AuthClient) Close() {
	a.currentUser.Close()
}

func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
