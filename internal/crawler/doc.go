// Package crawler defines the types and interfaces shared across the job
// watcher: site rules, postings, stored rows, read filters and the
// collaborator contracts for fetching, storage and delivery.
package crawler
