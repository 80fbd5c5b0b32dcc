// Package wait provides context-aware sleeping and condition polling.
//
// Until replaces fixed sleeps: callers describe the state they are waiting
// for and get back as soon as it holds, or ErrTimeout once the budget is spent.
package wait
