// Package database provides PostgreSQL connectivity and the dispatch repository.
//
// Uses pgx for connection pooling and tern for migrations. DispatchRepo
// implements domain.DispatchStore.
package database
