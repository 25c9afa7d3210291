// Package review implements the human review queue over pending extractions:
// listing the least-certain items first and applying confirm/reject
// decisions. Confirmation is the only path that turns an extraction into a
// bill (outside auto-accept).
package review
