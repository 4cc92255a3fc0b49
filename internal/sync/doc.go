// Package sync orchestrates one catalog synchronization run: acquire a
// source-tree snapshot, select candidate files, extract device records,
// merge them under the resource budget, aggregate chips, and write the
// validated catalog. All run state lives in the Runner; there are no
// process-wide singletons.
package sync
