// Package ddbmock provides substitutable DynamoDB clients for tests:
// a function-field MockClient for expectation-style unit tests, and a
// MemoryClient that emulates the rolodex table together with both of
// its secondary indexes, including bounded queries and cursor paging.
package ddbmock
