// Package core holds the wire models shared by the RecallrAI client: users,
// sessions, messages, memories, merge conflicts, their status enums and the
// generic Page wrapper returned by every list endpoint.
//
// The types here are plain data. They never talk to the network; the client
// package wraps them in handles that know how to refresh and mutate them.
package core
