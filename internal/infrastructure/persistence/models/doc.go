// Package models contains GORM persistence models for the billing tables.
// Domain aggregates stay free of ORM tags; each model carries its own
// ToDomain / FromDomain mapping and repositories only talk in models.
//
//   - base.go: shared columns (id, timestamps, version, tenant, soft delete)
//   - tenant.go, subscription.go, payment.go, invoice.go: aggregates
//   - dead_letter.go: jobs that exhausted their retries
package models
