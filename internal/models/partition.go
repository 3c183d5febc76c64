package models

import (
	"runtime"
	"sync"
)

// ChannelLines partitions the 1-D lines of a row-major array that run along
// lineAxis by their index on channelAxis. Entry c lists the flat offset of the
// first element of every line belonging to channel c, in ascending order.
//
// Lines of different channels never share an element, so workers given
// distinct entries can write their lines without synchronisation.
func ChannelLines(shape []int, channelAxis, lineAxis int) [][]int {
	if channelAxis == lineAxis {
		panic("models: channel axis and line axis must differ")
	}
	nChannels := shape[channelAxis]
	out := make([][]int, nChannels)
	if shape[lineAxis] == 0 {
		return out
	}
	strides := Strides(shape)
	size := 1
	for _, s := range shape {
		size *= s
	}
	lineStride := strides[lineAxis]
	chStride := strides[channelAxis]
	for i := 0; i < size; i++ {
		if (i/lineStride)%shape[lineAxis] != 0 {
			continue
		}
		c := (i / chStride) % nChannels
		out[c] = append(out[c], i)
	}
	return out
}

// Lines returns the flat offset of the first element of every line running
// along lineAxis, in ascending order.
func Lines(shape []int, lineAxis int) []int {
	if shape[lineAxis] == 0 {
		return nil
	}
	strides := Strides(shape)
	size := 1
	for _, s := range shape {
		size *= s
	}
	out := make([]int, 0, size/shape[lineAxis])
	for i := 0; i < size; i++ {
		if (i/strides[lineAxis])%shape[lineAxis] == 0 {
			out = append(out, i)
		}
	}
	return out
}

// ForEachChannel calls fn once for every channel in [0, n) from at most
// workers goroutines, each owning a contiguous block of channels. workers
// <= 0 uses runtime.NumCPU. It returns when every call has finished.
func ForEachChannel(n, workers int, fn func(c int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for c := 0; c < n; c++ {
			fn(c)
		}
		return
	}

	var wg sync.WaitGroup
	perWorker := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for c := start; c < end; c++ {
				fn(c)
			}
		}(start, end)
	}
	wg.Wait()
}

// Gather copies the n elements of the line starting at start with the given
// stride into buf and returns it.
func Gather(data []float64, start, stride, n int, buf []float64) []float64 {
	buf = buf[:0]
	for k := 0; k < n; k++ {
		buf = append(buf, data[start+k*stride])
	}
	return buf
}

// Scatter writes line back into data at start with the given stride.
func Scatter(data []float64, start, stride int, line []float64) {
	for k, x := range line {
		data[start+k*stride] = x
	}
}
