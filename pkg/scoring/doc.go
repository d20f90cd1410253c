// Package scoring implements the fitness scorer used to rank backends.
//
// A score combines a backend's capability profile, weighted by the request
// priority, with fixed bonuses for annotation tags that prefer the backend
// and for a context domain in the backend's specialties. Scores are capped
// at 1.
package scoring
