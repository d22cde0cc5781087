// Package cognito backs the credential lifecycle with an AWS Cognito user
// pool. The pool is the system of record for passwords, one-time codes, and
// issued tokens; the local user row mirrors registration state.
package cognito
