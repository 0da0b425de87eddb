//go:build integration

// Package testdb provides helpers for tests that run against a real
// PostgreSQL database.
//
// Tests in this package's orbit are guarded by the integration build tag and
// skip themselves when no database URL is configured:
//
//	func TestSomething(t *testing.T) {
//	    if testdb.ShouldSkipDatabaseTest() {
//	        t.Skip("DATABASE_URL not set - skipping integration test")
//	    }
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.ResetTables(t, db)
//	    userID := testdb.SeedUser(t, db, domain.TierFree)
//	    ...
//	}
//
// The session store opens its own transactions, so isolation is achieved by
// truncating the tables rather than by wrapping each test in a rolled-back
// transaction. Tests sharing a database must therefore not run in parallel.
//
// Environment variables, in lookup order:
//
//   - DATABASE_URL
//   - SPAREP_TEST_DB_URL
package testdb
