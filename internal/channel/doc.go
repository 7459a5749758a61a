// Package channel resolves removal patterns against the channel list of a
// bag.
//
// Patterns are flat shell-style globs: '*' and '?' also match '/', so
// "/imu/*" selects "/imu/sub/data" as well as "/imu/data". A pattern that
// does not compile as a glob is compared literally. Brace alternation
// ("/cam/{left,right}") is accepted as an extension.
package channel
