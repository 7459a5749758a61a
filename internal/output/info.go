package output

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/bagfilter/internal/bag"
)

// BagInfo summarizes a bag.
type BagInfo struct {
	Path     string `json:"path"`
	Format   string `json:"format"`
	Size     uint64 `json:"size"`
	Messages uint64 `json:"messages"`
	// Start and End are nanoseconds since the epoch.
	Start     int64         `json:"start"`
	End       int64         `json:"end"`
	StartTime string        `json:"startTime,omitempty"`
	EndTime   string        `json:"endTime,omitempty"`
	Duration  time.Duration `json:"duration"`
	Channels  []ChannelInfo `json:"channels"`
}

// ChannelInfo summarizes one channel of a bag.
type ChannelInfo struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Serialization string `json:"serialization"`
	Connections   int    `json:"connections"`
	Messages      uint64 `json:"messages"`
}

// NewBagInfo builds the report for an open bag. Channels keep the order in
// which the bag declares them; connections sharing a topic are merged.
func NewBagInfo(path string, format bag.Format, r bag.Reader) *BagInfo {
	start, end := r.TimeRange()

	info := &BagInfo{
		Path:     path,
		Format:   format.String(),
		Size:     diskUsage(path),
		Messages: r.MessageCount(),
		Start:    start,
		End:      end,
		Duration: time.Duration(end - start),
	}

	if info.Messages > 0 {
		info.StartTime = formatTime(start)
		info.EndTime = formatTime(end)
	}

	index := make(map[string]int)

	for _, c := range r.Connections() {
		i, ok := index[c.Topic]
		if !ok {
			i = len(info.Channels)
			index[c.Topic] = i
			info.Channels = append(info.Channels, ChannelInfo{
				Name:          c.Topic,
				Type:          c.MsgType,
				Serialization: c.Serialization,
			})
		}

		info.Channels[i].Connections++
		info.Channels[i].Messages += c.MessageCount
	}

	return info
}

func formatTime(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}

// diskUsage returns the size of a file, or the summed size of the regular
// files below a directory. Unreadable entries count as zero.
func diskUsage(path string) uint64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}

	if !st.IsDir() {
		return uint64(st.Size()) //nolint:gosec // sizes are non-negative
	}

	var total uint64

	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil //nolint:nilerr // best effort
		}

		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size()) //nolint:gosec // sizes are non-negative
		}

		return nil
	})

	return total
}
