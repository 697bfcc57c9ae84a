// Package identity resolves the acting account of a request.
//
// Wallet connection and session management happen outside the registry. A
// wallet gateway signs an HS256 session token whose subject is the wallet
// address; RequireAccount verifies it and exposes the address to handlers.
// Without a configured secret the registry runs in development mode and
// trusts the X-Account header instead.
package identity
