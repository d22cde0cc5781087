package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/goliatone/go-identity"
)

// poolAPI is the slice of the Cognito client the backend uses.
type poolAPI interface {
	SignUp(ctx context.Context, in *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	ForgotPassword(ctx context.Context, in *cip.ForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, in *cip.ConfirmForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	ChangePassword(ctx context.Context, in *cip.ChangePasswordInput, optFns ...func(*cip.Options)) (*cip.ChangePasswordOutput, error)
}

// Backend implements identity.CredentialBackend against a Cognito user pool.
// It never stores password hashes or codes locally; Cognito delivers its own
// codes, so Registration.Code and the code returns stay empty.
type Backend struct {
	client poolAPI
	config Config
	logger identity.Logger
}

var _ identity.CredentialBackend = (*Backend)(nil)

// Option customizes backend construction.
type Option func(*Backend)

// WithClient overrides the Cognito client (used in tests).
func WithClient(client poolAPI) Option {
	return func(b *Backend) {
		if client != nil {
			b.client = client
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger identity.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New builds a backend from pool configuration, loading AWS credentials from
// the default chain unless static keys are configured.
func New(ctx context.Context, cfg Config, opts ...Option) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{
		config: cfg,
		logger: identity.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if b.client == nil {
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, identity.WrapDependencyFailure(err, "failed to load aws configuration")
		}

		b.client = cip.NewFromConfig(awsCfg)
	}

	return b, nil
}

// Register creates the pool user. Cognito emails the confirmation code
// itself, so the returned Registration carries only the pool subject.
func (b *Backend) Register(ctx context.Context, email, password string) (*identity.Registration, error) {
	out, err := b.client.SignUp(ctx, &cip.SignUpInput{
		ClientId:   aws.String(b.config.ClientID),
		Username:   aws.String(email),
		Password:   aws.String(password),
		SecretHash: b.secretHash(email),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
		},
	})
	if err != nil {
		return nil, mapPoolError(err, opSignup)
	}

	return &identity.Registration{
		Subject: aws.ToString(out.UserSub),
	}, nil
}

// ConfirmRegistration consumes the pool-delivered confirmation code.
func (b *Backend) ConfirmRegistration(ctx context.Context, user *identity.User, code string) error {
	if user == nil {
		return identity.ErrUnknownAccount
	}

	_, err := b.client.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(b.config.ClientID),
		Username:         aws.String(user.Email),
		ConfirmationCode: aws.String(code),
		SecretHash:       b.secretHash(user.Email),
	})
	if err != nil {
		return mapPoolError(err, opConfirm)
	}

	return nil
}

// RegenerateCode asks the pool to re-deliver the confirmation code. The
// returned code is empty: delivery is Cognito's.
func (b *Backend) RegenerateCode(ctx context.Context, user *identity.User) (string, error) {
	if user == nil {
		return "", identity.ErrUnknownAccount
	}

	_, err := b.client.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId:   aws.String(b.config.ClientID),
		Username:   aws.String(user.Email),
		SecretHash: b.secretHash(user.Email),
	})
	if err != nil {
		return "", mapPoolError(err, opResend)
	}

	return "", nil
}

// Authenticate runs USER_PASSWORD_AUTH. The pool decides the outcome whether
// or not a local row exists, which keeps timing uniform for unknown emails.
func (b *Backend) Authenticate(ctx context.Context, email, password string, _ *identity.User) (*identity.TokenPair, error) {
	params := map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	}
	if hash := b.secretHash(email); hash != nil {
		params["SECRET_HASH"] = aws.ToString(hash)
	}

	out, err := b.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserPasswordAuth,
		ClientId:       aws.String(b.config.ClientID),
		AuthParameters: params,
	})
	if err != nil {
		return nil, mapPoolError(err, opLogin)
	}

	return pairFromResult(out.AuthenticationResult)
}

// StartPasswordReset triggers pool-side reset code delivery.
func (b *Backend) StartPasswordReset(ctx context.Context, user *identity.User) (string, error) {
	if user == nil {
		return "", identity.ErrUnknownAccount
	}

	_, err := b.client.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId:   aws.String(b.config.ClientID),
		Username:   aws.String(user.Email),
		SecretHash: b.secretHash(user.Email),
	})
	if err != nil {
		return "", mapPoolError(err, opForgot)
	}

	return "", nil
}

// CompletePasswordReset consumes the reset code and sets the new password.
func (b *Backend) CompletePasswordReset(ctx context.Context, user *identity.User, code, newPassword string) error {
	if user == nil {
		return identity.ErrInvalidCode
	}

	_, err := b.client.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(b.config.ClientID),
		Username:         aws.String(user.Email),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
		SecretHash:       b.secretHash(user.Email),
	})
	if err != nil {
		return mapPoolError(err, opReset)
	}

	return nil
}

// ChangePassword replaces the password for the session holding accessToken.
func (b *Backend) ChangePassword(ctx context.Context, user *identity.User, accessToken, oldPassword, newPassword string) error {
	if user == nil {
		return identity.ErrUnknownAccount
	}

	if accessToken == "" {
		return identity.ErrInvalidToken
	}

	_, err := b.client.ChangePassword(ctx, &cip.ChangePasswordInput{
		AccessToken:      aws.String(accessToken),
		PreviousPassword: aws.String(oldPassword),
		ProposedPassword: aws.String(newPassword),
	})
	if err != nil {
		return mapPoolError(err, opChange)
	}

	return nil
}

// Refresh runs REFRESH_TOKEN_AUTH. Cognito does not rotate refresh tokens,
// so the returned pair carries an empty RefreshToken and callers keep using
// the one they presented.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error) {
	out, err := b.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(b.config.ClientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		return nil, mapPoolError(err, opRefresh)
	}

	return pairFromResult(out.AuthenticationResult)
}

// secretHash computes the SECRET_HASH parameter when the app client has a
// secret: base64(HMAC-SHA256(username + client id, client secret)).
func (b *Backend) secretHash(username string) *string {
	if b.config.ClientSecret == "" {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(b.config.ClientSecret))
	mac.Write([]byte(username + b.config.ClientID))

	return aws.String(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func pairFromResult(result *types.AuthenticationResultType) (*identity.TokenPair, error) {
	if result == nil || result.AccessToken == nil {
		return nil, identity.ErrInvalidCredentials
	}

	return &identity.TokenPair{
		AccessToken:  aws.ToString(result.AccessToken),
		RefreshToken: aws.ToString(result.RefreshToken),
		ExpiresIn:    int64(result.ExpiresIn),
	}, nil
}
