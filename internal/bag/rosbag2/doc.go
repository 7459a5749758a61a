// Package rosbag2 reads and writes ROS2 bag directories backed by sqlite3.
//
// A bag directory holds a metadata.yaml description and one or more storage
// files. Storage files may be zstd compressed as a whole ("file" mode) or
// per message ("message" mode). Readers visit storage files in the order
// listed by the metadata and rows in insertion order.
package rosbag2
