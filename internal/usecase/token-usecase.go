package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/iamvkosarev/ai-gateway-sdk/config"
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"go.uber.org/zap"
	"io"
	"net/http"
	"net/url"
)

type SecretStorage interface {
	SaveSecret(ctx context.Context, value, service, account string) error
	ReadSecret(ctx context.Context, service, account string) (string, error)
	DeleteSecret(ctx context.Context, service, account string) error
}

type TokenUsecaseDeps struct {
	SecretStorage SecretStorage
	HTTPClient    *retryablehttp.Client
	Logger        *zap.Logger
}

// TokenUsecase turns the stored identity token into a backend access token.
// Nothing is cached: every GetValidToken performs a fresh exchange.
type TokenUsecase struct {
	TokenUsecaseDeps
	cfg     config.Auth
	authURL string
}

type authRequest struct {
	IDToken string `json:"id_token"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

func NewTokenUsecase(deps TokenUsecaseDeps, gatewayCfg config.Gateway, cfg config.Auth) (*TokenUsecase, error) {
	authURL, err := url.JoinPath(gatewayCfg.BaseURL, "v1", "apps", gatewayCfg.AppID, "end-users", "apple")
	if err != nil {
		return nil, fmt.Errorf("failed to build auth url: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = NewRetryableClient(cfg, nil, deps.Logger)
	}
	return &TokenUsecase{
		TokenUsecaseDeps: deps,
		cfg:              cfg,
		authURL:          authURL,
	}, nil
}

// GetValidToken exchanges the stored identity token for an access token and
// persists the result.
func (t *TokenUsecase) GetValidToken(ctx context.Context) (string, error) {
	idToken, err := t.readIdentityToken(ctx)
	if err != nil {
		return "", err
	}
	accessToken, err := t.AuthenticateWithServer(ctx, idToken)
	if err != nil {
		return "", err
	}
	if err = t.saveAccessToken(ctx, accessToken); err != nil {
		return "", err
	}
	return accessToken, nil
}

// AuthenticateWithServer posts idToken to the backend and returns the access
// token it issues.
func (t *TokenUsecase) AuthenticateWithServer(ctx context.Context, idToken string) (string, error) {
	body, err := json.Marshal(authRequest{IDToken: idToken})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.authURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// once retries run out the last response comes back together with an error
	resp, err := t.HTTPClient.Do(req)
	if resp == nil {
		t.Logger.Warn("auth request failed", zap.Error(err))
		return "", &model.NetworkError{Op: "authenticate", Err: err}
	}
	defer resp.Body.Close()

	if err = model.StatusError(resp.StatusCode); err != nil {
		t.Logger.Warn("auth rejected", zap.Int("status", resp.StatusCode))
		return "", err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &model.NetworkError{Op: "authenticate", Err: err}
	}
	var authResp authResponse
	if err = json.Unmarshal(raw, &authResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", errors.Join(model.ErrInvalidResponse, err))
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("auth response has no access token: %w", model.ErrInvalidResponse)
	}
	t.Logger.Debug("access token issued")
	return authResp.AccessToken, nil
}

// AttemptAutoLogin reports whether a stored identity can still be exchanged.
// A rejected credential is an answer, not an error.
func (t *TokenUsecase) AttemptAutoLogin(ctx context.Context) (bool, error) {
	idToken, err := t.readIdentityToken(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotAuthenticated) {
			return false, nil
		}
		return false, err
	}
	accessToken, err := t.AuthenticateWithServer(ctx, idToken)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredential) {
			t.Logger.Info("stored identity rejected")
			return false, nil
		}
		return false, err
	}
	if err = t.saveAccessToken(ctx, accessToken); err != nil {
		return false, err
	}
	return true, nil
}

// SignIn stores idToken as the identity and exchanges it right away.
func (t *TokenUsecase) SignIn(ctx context.Context, idToken string) error {
	err := t.SecretStorage.SaveSecret(ctx, idToken, t.cfg.IdentityService, t.cfg.IdentityAccount)
	if err != nil {
		return fmt.Errorf("failed to save identity token: %w", err)
	}
	accessToken, err := t.AuthenticateWithServer(ctx, idToken)
	if err != nil {
		return err
	}
	return t.saveAccessToken(ctx, accessToken)
}

// SignOut forgets both the identity and the last access token.
func (t *TokenUsecase) SignOut(ctx context.Context) error {
	if err := t.SecretStorage.DeleteSecret(ctx, t.cfg.IdentityService, t.cfg.IdentityAccount); err != nil {
		return fmt.Errorf("failed to delete identity token: %w", err)
	}
	if err := t.SecretStorage.DeleteSecret(ctx, t.cfg.AccessService, t.cfg.AccessAccount); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	return nil
}

func (t *TokenUsecase) readIdentityToken(ctx context.Context) (string, error) {
	idToken, err := t.SecretStorage.ReadSecret(ctx, t.cfg.IdentityService, t.cfg.IdentityAccount)
	if err != nil {
		if errors.Is(err, model.ErrSecretDoesNotExist) {
			return "", model.ErrNotAuthenticated
		}
		return "", fmt.Errorf("failed to read identity token: %w", err)
	}
	return idToken, nil
}

func (t *TokenUsecase) saveAccessToken(ctx context.Context, accessToken string) error {
	err := t.SecretStorage.SaveSecret(ctx, accessToken, t.cfg.AccessService, t.cfg.AccessAccount)
	if err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}
