// Package status derives read-side views of jobs from the stores: the
// current state of each job and aggregate execution metrics. Nothing here
// is persisted; every call reads the stores afresh.
package status
