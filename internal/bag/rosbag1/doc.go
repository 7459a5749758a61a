// Package rosbag1 reads and writes single-file ROS1 bags (format 2.0).
//
// A bag is a sequence of length-prefixed records. Messages live inside
// chunks, optionally compressed with bz2 (read only) or lz4; the index
// section at the end of the file lists every connection and chunk. The
// reader streams chunk contents through a decompressor so memory use does
// not grow with the bag, and the writer buffers at most one chunk.
package rosbag1
