// Package testutil contains helpers shared by tests: builders for scripted
// assistant turns and in-memory calendar and mail stores that record every
// collaborator call. They are not intended for production usage.
package testutil
