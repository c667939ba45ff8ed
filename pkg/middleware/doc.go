// Package middleware provides HTTP middleware for request authentication.
//
// Authentication is pluggable through auth.Resolver: deployments wire in
// whatever session or token scheme fronts the admin app, and the middleware
// only cares about getting a resolved user onto the request context.
// Permission guards live in pkg/rbac since they need the store.
package middleware
