// Package auth provides authentication middleware for logshipper-sink.
//
// APIKey(mode, header, key, next) wraps an http.Handler and validates the API
// key sent in the named request header.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware answers 401 Unauthorized without calling next.
package auth
