// Package queue synthesizes upcoming paragraphs in the background so the
// audio cache already holds them when narration reaches them.
package queue
