// Package jwt mints and verifies the access tokens handed out when a goMFA
// login completes. [Manager] implements goMFA.SessionIssuer.
package jwt
