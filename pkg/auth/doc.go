// Package auth defines the identity-resolution boundary.
//
// Credential verification, password hashing and session issuance live in an
// external subsystem; this package only describes what that subsystem must
// hand over per request (a resolved user with a group assignment and a role
// tag) and the Resolver interface the HTTP middleware consumes.
//
// The superadmin designation is translated into a tagged Role exactly once,
// at resolution time. Downstream code switches on the tag instead of
// re-comparing the designation string on every permission check.
package auth
