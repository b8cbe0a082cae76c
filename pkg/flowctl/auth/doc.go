// Package auth implements the OAuth 2.0 authorization code flow with PKCE
// against a Salesforce instance, using a short-lived loopback listener to
// receive the authorization callback.
package auth
