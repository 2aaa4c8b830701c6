// Package moderation provides a staged-mutation moderation engine for
// articles, categories and tags.
//
// Callers never write canonical records directly. Every add, edit or delete
// is stored as a Proposal that an administrator later approves or rejects.
// Approval applies the change to the canonical store (and promotes any staged
// asset); rejection leaves canonical data untouched.
//
// The engine is generic over the per-kind payload type. A Traits value
// describes the kind-specific parts: which field the slug is derived from,
// how payloads are validated and which field, if any, holds an image asset.
// Storage is pluggable through the Backend interface; memory and Postgres
// implementations are provided under repo/, and asset blob stores (memory,
// filesystem, S3) under storage/.
//
// Read Views
//
// List and detail reads are reconciled on every call: canonical records are
// blended with their latest proposal according to the actor's visibility.
// The reconciliation itself is a set of pure functions in reconcile.go so it
// can be tested without a store.
package moderation
