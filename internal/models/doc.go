// Package models defines the domain entities exchanged between the course portal, the sync engine and its consumers.
//
// The package contains two categories of types:
//
// 1. Portal DTOs: lightweight structs decoded from portal responses
//   - [Semester] : the active teaching term
//   - [Course] : a course in the semester's course list
//   - [Homework] : an assignment attached to a course
//   - [Document] : a file in one of a course's document categories
//
// 2. Persistent entities: database-backed models with lifecycle management
//   - [SyncRun] : one get/refresh/stream operation recorded in the run journal
//
// [Scope] and [Kind] describe what a caller asked for and build the cache keys and stream ids the engine uses.
package models
