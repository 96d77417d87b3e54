/*
Package session implements per-session turn admission and persistence.

A Manager serializes turns on the same session ID (a ref-counted local mutex, plus an
optional distributed lock for multi-replica deployments), loads the dialogue history
from a ports.DialogueStore, runs one turn and saves the result. Different sessions
proceed concurrently.
*/
package session
