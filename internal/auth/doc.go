// Package auth provides bearer-token authentication and authorisation for
// the leapbridge admin API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret and minted
// offline by "leapbridge token". There is no user database: the token
// carries the caller's subject and one of three roles
// (viewer → operator → admin), and each API route requires a Permission
// that the role must grant.
package auth
