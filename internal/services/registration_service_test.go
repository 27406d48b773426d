package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relations-go/internal/apperrors"
	"relations-go/internal/auth"
	"relations-go/internal/captcha"
	"relations-go/internal/config"
	"relations-go/internal/ipreputation"
	"relations-go/internal/storage"
	"relations-go/internal/testutil"
)

type stubVerifier struct {
	result *captcha.VerifyResult
	err    error
	calls  int
}

func (v *stubVerifier) Verify(ctx context.Context, token, callerIP string) (*captcha.VerifyResult, error) {
	v.calls++
	return v.result, v.err
}

type stubClassifier struct {
	cls   *ipreputation.Classification
	err   error
	calls int
}

func (c *stubClassifier) Classify(ctx context.Context, ip string) (*ipreputation.Classification, error) {
	c.calls++
	return c.cls, c.err
}

type registrationFixture struct {
	svc        RegistrationService
	users      storage.UserRepository
	invites    InviteService
	verifier   *stubVerifier
	classifier *stubClassifier
}

// newRegistrationFixture builds the pipeline against a fresh test DB with a
// permissive baseline policy; mutate tightens individual gates per test.
func newRegistrationFixture(t *testing.T, mutate func(*config.Config)) *registrationFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	users := storage.NewGormUserRepository(db)
	invites := NewInviteService(storage.NewGormInviteRepository(db))

	cfg := config.Config{
		Registration: config.RegistrationConfig{
			AllowNewRegistration:  true,
			AllowGuests:           true,
			AllowMultipleAccounts: true,
			DateOfBirth:           config.DateOfBirthConfig{MinimumAge: 13},
		},
		Captcha: config.CaptchaConfig{
			Service: "hcaptcha",
			Sitekey: "site-key",
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	verifier := &stubVerifier{result: &captcha.VerifyResult{Success: true}}
	classifier := &stubClassifier{cls: &ipreputation.Classification{}}
	svc := NewRegistrationService(users, invites, verifier, classifier, cfg)
	return &registrationFixture{svc: svc, users: users, invites: invites, verifier: verifier, classifier: classifier}
}

func validRequest() RegisterRequest {
	return RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hunter22",
		Consent:  true,
	}
}

func fieldCode(t *testing.T, err error, field string) string {
	t.Helper()
	var fieldErrs *apperrors.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	fe, ok := fieldErrs.Errors[field]
	require.True(t, ok, "expected an error on field %q, got %v", field, fieldErrs.Errors)
	return fe.Code
}

func TestRegisterCreatesAccount(t *testing.T) {
	f := newRegistrationFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
	require.NoError(t, err)
	require.NotZero(t, result.UserID)

	user, err := f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, result.UserID, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Len(t, user.Discriminator, 4)
	assert.True(t, auth.CheckPasswordHash("hunter22", user.PasswordHash))
	assert.False(t, user.Invited)
}

func TestRegisterGuestAccount(t *testing.T) {
	f := newRegistrationFixture(t, nil)

	req := RegisterRequest{Username: "drifter", Consent: true}
	result, err := f.svc.Register(context.Background(), req, "203.0.113.7")
	require.NoError(t, err)

	user, err := f.users.GetByID(context.Background(), result.UserID)
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)
	assert.Empty(t, user.Email)
}

func TestRegisterPolicyGates(t *testing.T) {
	ctx := context.Background()

	t.Run("registration disabled", func(t *testing.T) {
		f := newRegistrationFixture(t, func(cfg *config.Config) {
			cfg.Registration.AllowNewRegistration = false
		})
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		var policy *apperrors.PolicyDisabledError
		require.ErrorAs(t, err, &policy)
		assert.Equal(t, apperrors.CodeRegistrationDisabled, policy.Code)
	})

	t.Run("registration closed", func(t *testing.T) {
		f := newRegistrationFixture(t, func(cfg *config.Config) {
			cfg.Registration.Disabled = true
		})
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		var policy *apperrors.PolicyDisabledError
		require.ErrorAs(t, err, &policy)
		assert.Equal(t, apperrors.CodeRegistrationClosed, policy.Code)
	})

	t.Run("guests disabled", func(t *testing.T) {
		f := newRegistrationFixture(t, func(cfg *config.Config) {
			cfg.Registration.AllowGuests = false
		})
		req := validRequest()
		req.Password = ""
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		var policy *apperrors.PolicyDisabledError
		require.ErrorAs(t, err, &policy)
		assert.Equal(t, apperrors.CodeGuestsDisabled, policy.Code)
	})
}

func TestRegisterConsentPrecedesLaterChecks(t *testing.T) {
	// Even a request that would fail several later gates reports missing
	// consent first.
	f := newRegistrationFixture(t, func(cfg *config.Config) {
		cfg.Registration.AllowGuests = false
		cfg.Registration.RequireEmail = true
		cfg.Captcha.Enabled = true
	})
	req := RegisterRequest{Username: "alice"}

	_, err := f.svc.Register(context.Background(), req, "203.0.113.7")
	assert.Equal(t, apperrors.CodeConsentRequired, fieldCode(t, err, "consent"))
	assert.Zero(t, f.verifier.calls)
}

func TestRegisterCaptcha(t *testing.T) {
	ctx := context.Background()
	enable := func(cfg *config.Config) { cfg.Captcha.Enabled = true }

	t.Run("missing token returns challenge", func(t *testing.T) {
		f := newRegistrationFixture(t, enable)
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		var challenge *apperrors.CaptchaChallenge
		require.ErrorAs(t, err, &challenge)
		assert.Equal(t, "site-key", challenge.Sitekey)
		assert.Equal(t, "hcaptcha", challenge.Service)
		assert.Zero(t, f.verifier.calls)
	})

	t.Run("rejected token returns challenge", func(t *testing.T) {
		f := newRegistrationFixture(t, enable)
		f.verifier.result = &captcha.VerifyResult{Success: false, ErrorCodes: []string{"invalid-input-response"}}
		req := validRequest()
		req.CaptchaKey = "bad-token"
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		var challenge *apperrors.CaptchaChallenge
		require.ErrorAs(t, err, &challenge)
		assert.Equal(t, 1, f.verifier.calls)
	})

	t.Run("provider failure is a hard error", func(t *testing.T) {
		f := newRegistrationFixture(t, enable)
		f.verifier.result = nil
		f.verifier.err = errors.New("siteverify timeout")
		req := validRequest()
		req.CaptchaKey = "token"
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		var external *apperrors.ExternalServiceError
		require.ErrorAs(t, err, &external)
		assert.Equal(t, "captcha", external.Service)
	})

	t.Run("valid token passes", func(t *testing.T) {
		f := newRegistrationFixture(t, enable)
		req := validRequest()
		req.CaptchaKey = "token"
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		require.NoError(t, err)
	})
}

func TestRegisterFingerprintDetection(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t, func(cfg *config.Config) {
		cfg.Registration.AllowMultipleAccounts = false
	})

	first := validRequest()
	first.Fingerprint = "device-abc"
	_, err := f.svc.Register(ctx, first, "203.0.113.7")
	require.NoError(t, err)

	second := RegisterRequest{Username: "bob", Consent: true, Fingerprint: "device-abc"}
	_, err = f.svc.Register(ctx, second, "203.0.113.7")
	assert.Equal(t, apperrors.CodeMultipleAccounts, fieldCode(t, err, "email"))

	// A different device registers fine.
	third := RegisterRequest{Username: "carol", Consent: true, Fingerprint: "device-xyz"}
	_, err = f.svc.Register(ctx, third, "203.0.113.7")
	require.NoError(t, err)
}

func TestRegisterProxyOrigin(t *testing.T) {
	ctx := context.Background()
	enable := func(cfg *config.Config) { cfg.Security.BlockProxies = true }

	t.Run("proxy rejected", func(t *testing.T) {
		f := newRegistrationFixture(t, enable)
		f.classifier.cls = &ipreputation.Classification{IsProxy: true}
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		assert.Equal(t, apperrors.CodeProxyBlocked, fieldCode(t, err, "ip"))
	})

	t.Run("provider failure is a hard error", func(t *testing.T) {
		f := newRegistrationFixture(t, enable)
		f.classifier.cls = nil
		f.classifier.err = errors.New("provider down")
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		var external *apperrors.ExternalServiceError
		require.ErrorAs(t, err, &external)
		assert.Equal(t, "ip-reputation", external.Service)
	})

	t.Run("clean address passes", func(t *testing.T) {
		f := newRegistrationFixture(t, enable)
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		require.NoError(t, err)
		assert.Equal(t, 1, f.classifier.calls)
	})
}

func TestRegisterDuplicateEmailNormalized(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t, nil)

	first := validRequest()
	first.Email = "ab@gmail.com"
	_, err := f.svc.Register(ctx, first, "203.0.113.7")
	require.NoError(t, err)

	// Dot and +alias variants of the same Gmail address are the same
	// account for duplicate detection.
	second := RegisterRequest{Username: "bob", Email: "A.B+promo@GMail.com", Password: "pw123456", Consent: true}
	_, err = f.svc.Register(ctx, second, "203.0.113.7")
	assert.Equal(t, apperrors.CodeEmailRegistered, fieldCode(t, err, "email"))
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Alice@Example.COM":        "alice@example.com",
		"a.b+tag@gmail.com":        "ab@gmail.com",
		"a.b.c@googlemail.com":     "abc@gmail.com",
		"first.last@example.com":   "first.last@example.com", // dots only fold on Gmail
		"keep+tag@example.com":     "keep+tag@example.com",   // +alias only folds on Gmail
		"  padded@example.com  ":   "padded@example.com",
		"":                         "",
		"not-an-email":             "not-an-email",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeEmail(input), "input %q", input)
	}
}

func TestRegisterEmailRequired(t *testing.T) {
	f := newRegistrationFixture(t, func(cfg *config.Config) {
		cfg.Registration.RequireEmail = true
	})
	req := validRequest()
	req.Email = ""
	_, err := f.svc.Register(context.Background(), req, "203.0.113.7")
	assert.Equal(t, apperrors.CodeEmailRequired, fieldCode(t, err, "email"))
}

func TestRegisterDateOfBirth(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("required but missing", func(t *testing.T) {
		f := newRegistrationFixture(t, func(cfg *config.Config) {
			cfg.Registration.DateOfBirth.Required = true
		})
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		assert.Equal(t, apperrors.CodeDOBRequired, fieldCode(t, err, "date_of_birth"))
	})

	t.Run("malformed", func(t *testing.T) {
		f := newRegistrationFixture(t, nil)
		req := validRequest()
		req.DateOfBirth = "31-12-1999"
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		assert.Equal(t, apperrors.CodeDOBInvalid, fieldCode(t, err, "date_of_birth"))
	})

	t.Run("exactly minimum age is accepted", func(t *testing.T) {
		f := newRegistrationFixture(t, nil)
		req := validRequest()
		req.DateOfBirth = time.Date(now.Year()-13, now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		require.NoError(t, err)
	})

	t.Run("one day short is underage", func(t *testing.T) {
		f := newRegistrationFixture(t, nil)
		req := validRequest()
		req.DateOfBirth = time.Date(now.Year()-13, now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, 1).Format("2006-01-02")
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		assert.Equal(t, apperrors.CodeDOBUnderage, fieldCode(t, err, "date_of_birth"))
	})
}

func TestRegisterPasswordRequired(t *testing.T) {
	f := newRegistrationFixture(t, func(cfg *config.Config) {
		cfg.Registration.RequirePassword = true
	})
	req := validRequest()
	req.Password = ""
	_, err := f.svc.Register(context.Background(), req, "203.0.113.7")
	assert.Equal(t, apperrors.CodePasswordRequired, fieldCode(t, err, "password"))
}

func TestRegisterInvitePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("invite required", func(t *testing.T) {
		f := newRegistrationFixture(t, func(cfg *config.Config) {
			cfg.Registration.RequireInvite = true
		})
		_, err := f.svc.Register(ctx, validRequest(), "203.0.113.7")
		assert.Equal(t, apperrors.CodeInviteRequired, fieldCode(t, err, "invite"))
	})

	t.Run("guests need invite when only guests are gated", func(t *testing.T) {
		f := newRegistrationFixture(t, func(cfg *config.Config) {
			cfg.Registration.GuestsRequireInvite = true
		})
		req := RegisterRequest{Username: "drifter", Consent: true}
		_, err := f.svc.Register(ctx, req, "203.0.113.7")
		assert.Equal(t, apperrors.CodeInviteRequired, fieldCode(t, err, "invite"))

		// A full account with a password is not gated.
		_, err = f.svc.Register(ctx, validRequest(), "203.0.113.7")
		require.NoError(t, err)
	})
}

func TestRegisterRedeemsInvite(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t, func(cfg *config.Config) {
		cfg.Registration.RequireInvite = true
	})

	invite, err := f.invites.Create(ctx, 1, 0)
	require.NoError(t, err)

	req := validRequest()
	req.Invite = invite.Code
	result, err := f.svc.Register(ctx, req, "203.0.113.7")
	require.NoError(t, err)

	user, err := f.users.GetByID(ctx, result.UserID)
	require.NoError(t, err)
	assert.True(t, user.Invited)

	// The single use is consumed: the next registration fails on redeem,
	// but the account was already created and is not rolled back.
	second := RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw123456", Consent: true, Invite: invite.Code}
	_, err = f.svc.Register(ctx, second, "203.0.113.7")
	assert.Equal(t, apperrors.CodeInviteExhausted, fieldCode(t, err, "invite"))
	_, err = f.users.GetByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
}

func TestRegisterUnknownInvite(t *testing.T) {
	f := newRegistrationFixture(t, nil)
	req := validRequest()
	req.Invite = "no-such-code"
	_, err := f.svc.Register(context.Background(), req, "203.0.113.7")
	assert.Equal(t, apperrors.CodeInviteInvalid, fieldCode(t, err, "invite"))
}

func TestInviteExpiry(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(t, nil)

	invite, err := f.invites.Create(ctx, 0, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	req := validRequest()
	req.Invite = invite.Code
	_, err = f.svc.Register(ctx, req, "203.0.113.7")
	assert.Equal(t, apperrors.CodeInviteExpired, fieldCode(t, err, "invite"))
}
