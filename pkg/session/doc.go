// Package session keeps process-wide statistics and the history of
// extraction runs, and exports them as a JSON document.
package session
