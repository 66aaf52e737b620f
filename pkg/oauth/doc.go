// Package oauth implements the provider side of the three-legged OAuth flow:
// building the consent URL and exchanging the authorization code for tokens.
//
// Both pieces are provider agnostic; the defaults match Notion's public
// integration endpoints.
package oauth
