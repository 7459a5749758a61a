// Package output renders bag reports and writes them to their destination.
//
// The package is organized around four concerns:
//
//   - Reports (info.go): [BagInfo] summarizes an open bag and its channels.
//
//   - Rendering (registry.go, table.go, serializer.go): pluggable renderers
//     for table, YAML and JSON output via the [Registry].
//
//   - Diffs (diff.go): unified diffs of channel lists for dry runs.
//
//   - Writers (writer.go): report destinations via the [Writer] interface,
//     with [StdoutWriter] and [FileWriter] implementations.
package output
