// Package google provides OAuth2 authentication and token management for the
// Gmail API.
//
// The OAuth client comes from a desktop-app credentials file downloaded from
// the Google Cloud console. Tokens are cached as JSON on disk and refreshed
// automatically; every refreshed token is written back to the cache.
//
// A cache that cannot be parsed, or a refresh token that Google rejects, is
// deleted and surfaces as ErrReauthRequired so the caller can run the
// interactive Login flow again.
package google
