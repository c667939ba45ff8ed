// Package rbac implements group-based access control for a multi-page
// admin application.
//
// The model is a sparse (group, page) capability matrix: each stored row
// carries five independent booleans (add, edit, delete, view,
// view-all-detail) and an active flag. A missing or inactive row means no
// capability at all; deny is a normal boolean outcome, never an error.
// Users with the superadmin designation bypass the matrix entirely, before
// any page lookup, so the bypass also covers pages that were never
// registered.
//
// The package contains the SQL store, the permission evaluator, a dense
// read model over the sparse matrix, the navigation menu builder, HTTP
// guard middleware, the admin HTTP handlers and the schema migrations.
package rbac
