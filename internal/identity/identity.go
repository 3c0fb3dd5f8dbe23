// Package identity establishes who is calling the ledger API.
//
// It provides:
//   - TokenIssuer   issues and verifies HS256 caller tokens bound to an address
//   - KeyRing       checks per-address API keys against bcrypt hashes
//   - RequireCaller Gin middleware enforcing a Bearer caller token
//
// Identity only answers "who is the caller". Whether that caller may mint is
// decided by the ledger's owner check.
package identity
