// Package history keeps the operator's command history.
//
// The file is newline-delimited UTF-8, oldest first, and only ever appended
// to: Save writes the lines entered since the previous save. Load reads the
// file in one pass with a ring buffer so only the most recent entries are kept
// in memory regardless of file size.
//
// Two rules hold for the in-memory list at all times: no two adjacent entries
// are equal, and the list never exceeds its configured size.
package history
