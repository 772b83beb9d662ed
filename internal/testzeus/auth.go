package testzeus

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Environment variables consulted when credentials are not passed explicitly.
const (
	EnvEmail    = "TESTZEUS_EMAIL"
	EnvPassword = "TESTZEUS_PASSWORD"
	EnvBaseURL  = "TESTZEUS_BASE_URL"
)

// DefaultBaseURL is the production TestZeus API endpoint.
const DefaultBaseURL = "https://pb.prod.testzeus.app"

// refreshWindow is how close to expiry a token may get before it is refreshed.
const refreshWindow = 5 * time.Minute

// Credentials identify a TestZeus user.
type Credentials struct {
	Email    string
	Password string
	BaseURL  string
}

// CredentialsFromEnv reads credentials from TESTZEUS_EMAIL, TESTZEUS_PASSWORD
// and TESTZEUS_BASE_URL.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Email:    strings.TrimSpace(os.Getenv(EnvEmail)),
		Password: os.Getenv(EnvPassword),
		BaseURL:  strings.TrimSpace(os.Getenv(EnvBaseURL)),
	}
}

// WithFallback fills every empty field from fb.
func (c Credentials) WithFallback(fb Credentials) Credentials {
	if c.Email == "" {
		c.Email = fb.Email
	}
	if c.Password == "" {
		c.Password = fb.Password
	}
	if c.BaseURL == "" {
		c.BaseURL = fb.BaseURL
	}
	return c
}

// Validate reports which required fields are missing.
func (c Credentials) Validate() error {
	var missing []string
	if c.Email == "" {
		missing = append(missing, "email ("+EnvEmail+")")
	}
	if c.Password == "" {
		missing = append(missing, "password ("+EnvPassword+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Endpoint returns the API base URL without a trailing slash.
func (c Credentials) Endpoint() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// LogValue logs only the endpoint. The email and password never reach
// structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("base_url", c.Endpoint()))
}

// AuthRecord is the authenticated user record returned by the handshake.
type AuthRecord struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Tenant string `json:"tenant,omitempty"`
}

type authResponse struct {
	Token  string     `json:"token"`
	Record AuthRecord `json:"record"`
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// The server remains the authority on validity; the client only needs to
// know when to refresh.
func tokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading token expiry: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}
