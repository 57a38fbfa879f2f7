package fixed

import "fmt"

// Window is a fixed capacity ring of the most recent points with a running sum.
type Window struct {
	buffer []Point
	size   int
	tail   int
	sum    Point
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		panic("capacity must be positive")
	}
	return &Window{
		buffer: make([]Point, capacity),
		sum:    Zero,
	}
}

func (w *Window) Size() int     { return w.size }
func (w *Window) Capacity() int { return len(w.buffer) }
func (w *Window) IsFull() bool  { return w.size == len(w.buffer) }
func (w *Window) Sum() Point    { return w.sum }

func (w *Window) Clear() {
	w.size = 0
	w.tail = 0
	w.sum = Zero
}

// Push adds p and returns the evicted point, if any.
func (w *Window) Push(p Point) (Point, bool) {
	var evicted Point
	full := w.IsFull()
	if full {
		evicted = w.buffer[w.tail]
		w.sum = w.sum.Sub(evicted)
	} else {
		w.size++
	}

	w.buffer[w.tail] = p
	w.sum = w.sum.Add(p)
	w.tail = (w.tail + 1) % len(w.buffer)
	return evicted, full
}

// Get returns the idx-th most recent point, 0 being the latest.
func (w *Window) Get(idx int) Point {
	if idx < 0 || idx >= w.size {
		panic(fmt.Sprintf("index %d out of range [0, %d)", idx, w.size))
	}
	return w.buffer[(w.tail-1-idx+2*len(w.buffer))%len(w.buffer)]
}

func (w *Window) Latest() Point {
	if w.size == 0 {
		panic("window is empty")
	}
	return w.Get(0)
}

func (w *Window) Mean() Point {
	if w.size == 0 {
		return Zero
	}
	return w.sum.DivInt(w.size)
}

func (w *Window) Slice() []Point {
	result := make([]Point, w.size)
	for i := 0; i < w.size; i++ {
		result[i] = w.Get(w.size - 1 - i)
	}
	return result
}
