// Package extraction orchestrates the email-to-bill pipeline: preprocess,
// heuristic scan, optional AI field extraction, merge, payment URL
// resolution, duplicate detection, and persistence of the resulting
// Extraction.
//
// The service layer owns the business rules and depends on repository
// interfaces defined in this package; it should never import from api/.
// Repository implementations live in repository/postgres/.
package extraction
