package cognito

import (
	stderrors "errors"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
)

type poolOp string

const (
	opSignup  poolOp = "signup"
	opConfirm poolOp = "confirm_signup"
	opResend  poolOp = "resend_code"
	opLogin   poolOp = "login"
	opForgot  poolOp = "forgot_password"
	opReset   poolOp = "reset_password"
	opChange  poolOp = "change_password"
	opRefresh poolOp = "refresh"
)

// mapPoolError translates Cognito exceptions into the package's typed errors
// so callers branch on the same sentinels regardless of backend.
func mapPoolError(err error, op poolOp) error {
	if err == nil {
		return nil
	}

	var (
		usernameExists   *types.UsernameExistsException
		userNotConfirmed *types.UserNotConfirmedException
		userNotFound     *types.UserNotFoundException
		notAuthorized    *types.NotAuthorizedException
		codeMismatch     *types.CodeMismatchException
		expiredCode      *types.ExpiredCodeException
		invalidPassword  *types.InvalidPasswordException
		limitExceeded    *types.LimitExceededException
		tooManyRequests  *types.TooManyRequestsException
	)

	switch {
	case stderrors.As(err, &usernameExists):
		return clone(identity.ErrDuplicateEmail, err, op)

	case stderrors.As(err, &userNotConfirmed):
		return clone(identity.ErrAccountNotConfirmed, err, op)

	case stderrors.As(err, &userNotFound):
		// Login hides account existence; management operations report it.
		if op == opLogin {
			return clone(identity.ErrInvalidCredentials, err, op)
		}
		return clone(identity.ErrUnknownAccount, err, op)

	case stderrors.As(err, &notAuthorized):
		switch op {
		case opChange:
			return clone(identity.ErrInvalidOldPassword, err, op)
		case opRefresh:
			return clone(identity.ErrInvalidToken, err, op)
		default:
			return clone(identity.ErrInvalidCredentials, err, op)
		}

	case stderrors.As(err, &codeMismatch), stderrors.As(err, &expiredCode):
		return clone(identity.ErrInvalidCode, err, op)

	case stderrors.As(err, &invalidPassword):
		return goerrors.Wrap(err, goerrors.CategoryValidation, "password rejected by pool policy").
			WithTextCode("INVALID_PASSWORD")

	case stderrors.As(err, &limitExceeded), stderrors.As(err, &tooManyRequests):
		return clone(identity.ErrTooManyLoginAttempts, err, op)
	}

	return identity.WrapDependencyFailure(err, "cognito "+string(op)+" failed")
}

func clone(sentinel *goerrors.Error, cause error, op poolOp) error {
	c := sentinel.Clone()
	c.Source = cause
	return c.WithMetadata(map[string]any{
		"provider":  "cognito",
		"operation": string(op),
	})
}
