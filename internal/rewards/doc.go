// Package rewards computes what a transaction earned on the instrument used
// and what the best instrument in the wallet would have earned.
//
// All arithmetic is decimal. Points are floored from the spend amount, and
// the monetary value of those points is floored again to whole cents, so no
// fractional reward is ever manufactured.
package rewards
