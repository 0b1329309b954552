package remote

import (
	"context"
	apiError "diagnostic-service/internal/errors"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Identity is the verified actor the auth service vouches for.
type Identity struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Fullname       string  `json:"fullname"`
	Role           string  `json:"role"`
	Status         string  `json:"status"`
	Specialization *string `json:"specialization,omitempty"`
	Department     *string `json:"department,omitempty"`
	LicenseNumber  *string `json:"license_number,omitempty"`
}

type AuthClient struct {
	baseURL    string
	httpClient *http.Client
}

type RoleVerifier interface {
	VerifyRoles(ctx context.Context, authHeader string, allowedRoles []string) (*Identity, error)
}

func NewAuthClient(baseURL string) *AuthClient {
	return &AuthClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type verifyTokenResponse struct {
	User Identity `json:"user"`
}

type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// VerifyRoles validates the bearer header against the auth service with the
// allowed-role set encoded as a query parameter. Upstream 401/403 verdicts
// pass through with the upstream message; anything else that is not a 2xx
// counts as unauthenticated.
func (a *AuthClient) VerifyRoles(ctx context.Context, authHeader string, allowedRoles []string) (*Identity, error) {
	if authHeader == "" {
		return nil, apiError.Unauthorized("No token provided", nil)
	}

	url := fmt.Sprintf(
		"%s/api/v1/auth/verify-token?allowedRoles=%s",
		a.baseURL,
		strings.Join(allowedRoles, ","),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apiError.Internal(err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apiError.ServiceUnavailable(
			"El servicio de autenticación no está disponible en este momento. Por favor, intenta más tarde.",
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)

		var upstream upstreamError
		message := "Token inválido"
		if json.Unmarshal(b, &upstream) == nil && upstream.Message != "" {
			message = upstream.Message
		}

		switch resp.StatusCode {
		case http.StatusForbidden:
			return nil, apiError.Forbidden(message, nil)
		default:
			return nil, apiError.Unauthorized(message, fmt.Errorf("auth service status=%d", resp.StatusCode))
		}
	}

	var payload verifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apiError.Unauthorized(
			"The authentication service returned invalid data format",
			err,
		)
	}

	if err := payload.User.validate(); err != nil {
		return nil, apiError.Unauthorized(
			"The authentication service returned invalid data format",
			err,
		)
	}

	return &payload.User, nil
}

func (u *Identity) validate() error {
	switch {
	case u.ID == "":
		return fmt.Errorf("auth response missing user id")
	case u.Email == "":
		return fmt.Errorf("auth response missing user email")
	case u.Fullname == "":
		return fmt.Errorf("auth response missing user fullname")
	case u.Role == "":
		return fmt.Errorf("auth response missing user role")
	case u.Status == "":
		return fmt.Errorf("auth response missing user status")
	}
	return nil
}
