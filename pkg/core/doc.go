// Package core defines the shared language of the pawseed system.
//
// This package contains:
//   - Domain entities (Structure, Lattice, KpointSet, SiteCategories)
//   - Pseudopotential datasets and core regions
//   - Service interfaces (Store) and backend configuration
//   - The error taxonomy returned by every other package
//   - Projection result types (Proportion, BandAnalysis)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
