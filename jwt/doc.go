// Package jwt issues and verifies the signed tokens used by authcore: access,
// refresh and reset-password tokens sharing one claim shape and one
// verification path.
package jwt
