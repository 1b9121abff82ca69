// Package crawler orchestrates a crawl run: it establishes a session,
// pages through search results, status details or creator timelines,
// stores what it extracts and fans comment fetches out to a bounded worker
// pool. Per-item failures are recorded in the run report rather than
// aborting the run.
package crawler
