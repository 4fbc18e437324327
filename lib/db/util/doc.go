// Package util provides utility components for IRecordDB implementations.
//
// The package contains:
//   - statistics: Stats and DistributionStats for value series (used to rate how
//     evenly keys spread over buckets) and a SizeHistogram for tracking the
//     distribution of value sizes without keeping every sample
package util
