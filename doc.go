// Package identity implements the credential and session lifecycle for a
// user-facing API: signup with email confirmation, login, password reset and
// change, and access/refresh token issuance and rotation.
//
// Account lifecycle:
//   - Users carry a UserStatus field persisted via Bun. A signup creates the
//     account in pending_confirmation; consuming the confirmation code moves it
//     to done. Login is gated on the done status and re-triggers code delivery
//     for unconfirmed accounts.
//   - RegistrationStateMachine centralizes the transition graph so extension
//     states (disabled accounts, provider-linked flows) plug in without
//     touching call sites.
//
// Credential backends:
//   - CredentialBackend is the system of record for credentials. The package
//     ships a local backend (bcrypt hashes, one-time codes, self-issued HS256
//     token pairs) and a managed backend under provider/cognito that delegates
//     the same operations to an AWS Cognito user pool. The Accounts service is
//     parameterized by the backend and keeps the local user row as the mirror
//     of registration state in both variants.
//
// One-time codes:
//   - Confirmation and reset codes are single use and expire after a
//     configurable window. The service invalidates a code in the same
//     conditional update that consumes it, so replays and races between
//     process instances resolve at the storage layer.
package identity
