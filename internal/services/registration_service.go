package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"gorm.io/gorm"

	"relations-go/internal/apperrors"
	"relations-go/internal/auth"
	"relations-go/internal/captcha"
	"relations-go/internal/config"
	"relations-go/internal/ipreputation"
	"relations-go/internal/models"
	"relations-go/internal/storage"
)

const dateOfBirthLayout = "2006-01-02"

// discriminator assignment retries before giving up on a username.
const maxDiscriminatorAttempts = 5

// RegisterRequest is the inbound registration payload. Schema validation
// happens upstream; the pipeline only applies policy.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	Consent     bool   `json:"consent"`
	DateOfBirth string `json:"dateOfBirth,omitempty"` // "2006-01-02"
	Fingerprint string `json:"fingerprint,omitempty"`
	Invite      string `json:"invite,omitempty"`
	CaptchaKey  string `json:"captchaKey,omitempty"`
}

// RegisterResult is returned on successful registration.
type RegisterResult struct {
	UserID uint `json:"userId"`
}

// RegistrationService runs the registration guard pipeline: a fixed,
// ordered list of policy checks where the first failure wins. Later checks
// assume the invariants established by earlier ones, so the order is part
// of the contract — user-visible error precedence depends on it.
type RegistrationService interface {
	Register(ctx context.Context, req RegisterRequest, callerIP string) (*RegisterResult, error)
}

type registrationService struct {
	userRepo   storage.UserRepository
	invites    InviteService
	verifier   captcha.Verifier
	classifier ipreputation.Classifier
	cfg        config.Config
}

// NewRegistrationService creates a new RegistrationService instance.
func NewRegistrationService(
	userRepo storage.UserRepository,
	invites InviteService,
	verifier captcha.Verifier,
	classifier ipreputation.Classifier,
	cfg config.Config,
) RegistrationService {
	return &registrationService{
		userRepo:   userRepo,
		invites:    invites,
		verifier:   verifier,
		classifier: classifier,
		cfg:        cfg,
	}
}

// registrationState carries intermediate results between checks.
type registrationState struct {
	req      RegisterRequest
	callerIP string
	email    string // normalized
	hash     string // bcrypt hash, empty for guests
	dob      *time.Time
}

// Register runs every guard in order, creates the account, and redeems the
// invite if one was supplied. An invite failure after creation surfaces to
// the caller; the account is not rolled back.
func (s *registrationService) Register(ctx context.Context, req RegisterRequest, callerIP string) (*RegisterResult, error) {
	state := &registrationState{req: req, callerIP: callerIP}

	checks := []func(context.Context, *registrationState) error{
		s.checkRegistrationEnabled,
		s.checkConsent,
		s.checkNotClosed,
		s.checkGuestPolicy,
		s.checkCaptcha,
		s.checkFingerprint,
		s.checkProxyOrigin,
		s.checkDuplicateEmail,
		s.checkEmailRequired,
		s.checkDateOfBirth,
		s.checkPassword,
		s.checkInvitePolicy,
	}
	for _, check := range checks {
		if err := check(ctx, state); err != nil {
			return nil, err
		}
	}

	user, err := s.createAccount(ctx, state)
	if err != nil {
		return nil, err
	}

	if req.Invite != "" {
		if err := s.invites.Redeem(ctx, user.ID, req.Invite); err != nil {
			// Known partial-failure exposure: the account exists but the
			// invite did not redeem. Surfaced, not hidden.
			log.Printf("Invite redemption failed for new user %d: %v", user.ID, err)
			return nil, err
		}
	}

	log.Printf("User %d registered as %s#%s", user.ID, user.Username, user.Discriminator)
	return &RegisterResult{UserID: user.ID}, nil
}

// 1. Registration globally enabled.
func (s *registrationService) checkRegistrationEnabled(ctx context.Context, st *registrationState) error {
	if !s.cfg.Registration.AllowNewRegistration {
		return &apperrors.PolicyDisabledError{Code: apperrors.CodeRegistrationDisabled}
	}
	return nil
}

// 2. Terms-of-service consent present.
func (s *registrationService) checkConsent(ctx context.Context, st *registrationState) error {
	if !st.req.Consent {
		return apperrors.NewFieldError("consent", apperrors.CodeConsentRequired,
			"You must agree to the Terms of Service.")
	}
	return nil
}

// 3. Registration not administratively closed.
func (s *registrationService) checkNotClosed(ctx context.Context, st *registrationState) error {
	if s.cfg.Registration.Disabled {
		return &apperrors.PolicyDisabledError{Code: apperrors.CodeRegistrationClosed}
	}
	return nil
}

// 4. Guest (passwordless) registration allowed, if applicable.
func (s *registrationService) checkGuestPolicy(ctx context.Context, st *registrationState) error {
	if st.req.Password == "" && !s.cfg.Registration.AllowGuests {
		return &apperrors.PolicyDisabledError{Code: apperrors.CodeGuestsDisabled}
	}
	return nil
}

// 5. Captcha required and verified. On a failed or missing token the
// caller gets a challenge payload carrying the site key and service, not a
// generic field error. Provider failures are hard failures.
func (s *registrationService) checkCaptcha(ctx context.Context, st *registrationState) error {
	if !s.cfg.Captcha.Enabled {
		return nil
	}
	challenge := &apperrors.CaptchaChallenge{
		Sitekey: s.cfg.Captcha.Sitekey,
		Service: s.cfg.Captcha.Service,
	}
	if st.req.CaptchaKey == "" {
		return challenge
	}
	result, err := s.verifier.Verify(ctx, st.req.CaptchaKey, st.callerIP)
	if err != nil {
		return &apperrors.ExternalServiceError{Service: "captcha", Err: err}
	}
	if !result.Success {
		log.Printf("Captcha verification failed from %s: %v", st.callerIP, result.ErrorCodes)
		return challenge
	}
	return nil
}

// 6. Duplicate-account detection via device fingerprint.
func (s *registrationService) checkFingerprint(ctx context.Context, st *registrationState) error {
	if s.cfg.Registration.AllowMultipleAccounts || st.req.Fingerprint == "" {
		return nil
	}
	exists, err := s.userRepo.ExistsByFingerprint(ctx, st.req.Fingerprint)
	if err != nil {
		return fmt.Errorf("检查设备指纹失败: %w", err)
	}
	if exists {
		return apperrors.NewFieldError("email", apperrors.CodeMultipleAccounts,
			"An account already exists on this device.")
	}
	return nil
}

// 7. Proxy/VPN origin rejection via IP reputation.
func (s *registrationService) checkProxyOrigin(ctx context.Context, st *registrationState) error {
	if !s.cfg.Security.BlockProxies {
		return nil
	}
	cls, err := s.classifier.Classify(ctx, st.callerIP)
	if err != nil {
		return &apperrors.ExternalServiceError{Service: "ip-reputation", Err: err}
	}
	if cls.IsProxy {
		return apperrors.NewFieldError("ip", apperrors.CodeProxyBlocked,
			"Registration from proxies or VPNs is not allowed.")
	}
	return nil
}

// 8. Email normalization then duplicate detection.
func (s *registrationService) checkDuplicateEmail(ctx context.Context, st *registrationState) error {
	st.email = NormalizeEmail(st.req.Email)
	if st.email == "" {
		return nil
	}
	_, err := s.userRepo.GetByEmail(ctx, st.email)
	if err == nil {
		return apperrors.NewFieldError("email", apperrors.CodeEmailRegistered,
			"Email is already registered.")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("检查邮箱时出错: %w", err)
	}
	return nil
}

// 9. Email-required policy.
func (s *registrationService) checkEmailRequired(ctx context.Context, st *registrationState) error {
	if s.cfg.Registration.RequireEmail && st.email == "" {
		return apperrors.NewFieldError("email", apperrors.CodeEmailRequired,
			"A valid email address is required.")
	}
	return nil
}

// 10. Date-of-birth requirement and minimum age. The cutoff is a fixed
// "years back from now" date; a birth date strictly later than the cutoff
// is rejected, the boundary date itself is accepted.
func (s *registrationService) checkDateOfBirth(ctx context.Context, st *registrationState) error {
	policy := s.cfg.Registration.DateOfBirth
	if st.req.DateOfBirth == "" {
		if policy.Required {
			return apperrors.NewFieldError("date_of_birth", apperrors.CodeDOBRequired,
				"Date of birth is required.")
		}
		return nil
	}
	dob, err := time.Parse(dateOfBirthLayout, st.req.DateOfBirth)
	if err != nil {
		return apperrors.NewFieldError("date_of_birth", apperrors.CodeDOBInvalid,
			"Date of birth must be formatted as YYYY-MM-DD.")
	}
	if policy.MinimumAge > 0 {
		now := time.Now().UTC()
		cutoff := time.Date(now.Year()-policy.MinimumAge, now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if dob.After(cutoff) {
			return apperrors.NewFieldError("date_of_birth", apperrors.CodeDOBUnderage,
				fmt.Sprintf("You must be at least %d years old.", policy.MinimumAge))
		}
	}
	st.dob = &dob
	return nil
}

// 11. Password hashing, or password-required enforcement when absent.
func (s *registrationService) checkPassword(ctx context.Context, st *registrationState) error {
	if st.req.Password == "" {
		if s.cfg.Registration.RequirePassword {
			return apperrors.NewFieldError("password", apperrors.CodePasswordRequired,
				"A password is required.")
		}
		return nil
	}
	hash, err := auth.HashPassword(st.req.Password)
	if err != nil {
		return fmt.Errorf("密码哈希失败: %w", err)
	}
	st.hash = hash
	return nil
}

// 12. Invite-required policy.
func (s *registrationService) checkInvitePolicy(ctx context.Context, st *registrationState) error {
	required := s.cfg.Registration.RequireInvite
	if !required && s.cfg.Registration.GuestsRequireInvite && st.hash == "" && st.email == "" {
		required = true
	}
	if required && st.req.Invite == "" {
		return apperrors.NewFieldError("invite", apperrors.CodeInviteRequired,
			"An invite is required to register.")
	}
	return nil
}

// 13a. Account creation. Discriminator assignment retries on handle
// collision before reporting the username as taken.
func (s *registrationService) createAccount(ctx context.Context, st *registrationState) (*models.User, error) {
	for attempt := 0; attempt < maxDiscriminatorAttempts; attempt++ {
		discriminator := fmt.Sprintf("%04d", rand.Intn(9999)+1)
		if _, err := s.userRepo.GetByHandle(ctx, st.req.Username, discriminator); err == nil {
			continue // taken, retry
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("检查用户名时出错: %w", err)
		}

		user := &models.User{
			Username:      st.req.Username,
			Discriminator: discriminator,
			Email:         st.email,
			PasswordHash:  st.hash,
			Fingerprints:  st.req.Fingerprint,
			DateOfBirth:   st.dob,
			Invited:       st.req.Invite != "",
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, apperrors.NewFieldError("username", apperrors.CodeUsernameTaken,
				"Unable to register with this username.")
		}
		return user, nil
	}
	return nil, apperrors.NewFieldError("username", apperrors.CodeUsernameTaken,
		"Too many users have this username.")
}

// NormalizeEmail canonicalizes an address for duplicate detection:
// lowercase, and for Gmail-hosted addresses dot-stripping plus +alias
// folding ("a.b+tag@gmail.com" → "ab@gmail.com").
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if domain == "gmail.com" || domain == "googlemail.com" {
		if plus := strings.Index(local, "+"); plus >= 0 {
			local = local[:plus]
		}
		local = strings.ReplaceAll(local, ".", "")
		domain = "gmail.com"
	}
	return local + "@" + domain
}
