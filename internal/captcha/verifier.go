package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"relations-go/internal/config"
)

// VerifyResult is the outcome of a captcha token verification.
type VerifyResult struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier checks a captcha response token against the configured
// provider. Transport or provider failures are returned as errors and are
// distinct from a token that simply failed verification.
type Verifier interface {
	Verify(ctx context.Context, token, callerIP string) (*VerifyResult, error)
}

// httpVerifier talks to an hCaptcha/reCAPTCHA-style siteverify endpoint.
// Both services share the same form-POST request and JSON response shape.
type httpVerifier struct {
	cfg    config.CaptchaConfig
	client *http.Client
}

// NewHTTPVerifier creates a Verifier for the configured captcha service.
func NewHTTPVerifier(cfg config.CaptchaConfig) Verifier {
	return &httpVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify posts the token to the siteverify endpoint.
func (v *httpVerifier) Verify(ctx context.Context, token, callerIP string) (*VerifyResult, error) {
	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", token)
	if callerIP != "" {
		form.Set("remoteip", callerIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build captcha verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("captcha verify request to %s failed: %w", v.cfg.Service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captcha verify: %s returned status %d", v.cfg.Service, resp.StatusCode)
	}

	var result VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode captcha verify response: %w", err)
	}
	return &result, nil
}
