package ranges

import (
	"encoding/json"
	"fmt"
)

// MaxChunkSize caps the nominal chunk so large files get many small ranges.
const MaxChunkSize int64 = 2 * 1024 * 1024

// ByteRange is an inclusive [Start, End] byte span.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Size() int64 {
	return r.End - r.Start + 1
}

// Header renders the value for a Range request header.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

func (r ByteRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

func (r ByteRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{r.Start, r.End})
}

func (r *ByteRange) UnmarshalJSON(data []byte) error {
	var pair [2]int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("byte range must be a [start, end] pair: %w", err)
	}
	if pair[0] < 0 || pair[1] < pair[0] {
		return fmt.Errorf("invalid byte range [%d, %d]", pair[0], pair[1])
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// ChunkSize is the nominal chunk for a resource of totalSize bytes.
func ChunkSize(totalSize int64) int64 {
	return min(totalSize/5, MaxChunkSize)
}

// Partition splits totalSize bytes into contiguous ranges for concurrent
// fetching. The result may hold more ranges than connections when the
// nominal chunk is capped by MaxChunkSize.
func Partition(totalSize int64, connections int) []ByteRange {
	if totalSize <= 0 {
		return nil
	}
	if connections <= 1 {
		return []ByteRange{{Start: 0, End: totalSize - 1}}
	}
	conns := min(int64(connections), totalSize)
	nominal := ChunkSize(totalSize)

	var sizes []int64
	if nominal == 0 || totalSize < conns*nominal {
		base, extra := totalSize/conns, totalSize%conns
		sizes = make([]int64, conns)
		for i := range sizes {
			sizes[i] = base
			if int64(i) < extra {
				sizes[i]++
			}
		}
		nominal = base
	} else {
		count := (totalSize + nominal - 1) / nominal
		sizes = make([]int64, count)
		for i := range sizes {
			sizes[i] = nominal
		}
		sizes[count-1] = totalSize - nominal*(count-1)
	}

	// keep the tail from degenerating into a tiny request
	if n := len(sizes); n > 1 {
		half := nominal / 2
		if last := sizes[n-1]; last < half {
			moved := half - last
			sizes[n-2] -= moved
			sizes[n-1] += moved
		}
	}

	out := make([]ByteRange, len(sizes))
	var start int64
	for i, size := range sizes {
		out[i] = ByteRange{Start: start, End: start + size - 1}
		start += size
	}
	return out
}

// Tiles reports whether rs covers [0, totalSize) contiguously in order.
func Tiles(rs []ByteRange, totalSize int64) bool {
	if totalSize == 0 {
		return len(rs) == 0
	}
	var next int64
	for _, r := range rs {
		if r.Start != next || r.End < r.Start {
			return false
		}
		next = r.End + 1
	}
	return next == totalSize
}
