// Package transcode copies the retained channels of a bag into a new bag
// of the same family.
//
// A [Transcoder] reads the channel table of its input once. Each
// [Transcoder.Export] call reopens the input, registers the retained
// connections on a fresh writer, and streams message records one at a time
// from reader to writer. Connection identifiers are remapped per export and
// payload bytes are never decoded.
//
// Exports are staged by default: the output is built inside a hidden
// sibling directory and renamed into place only once both bags closed
// cleanly, so a failed export never leaves a partial bag behind.
package transcode
