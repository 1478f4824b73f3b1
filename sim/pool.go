package sim

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum row count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 32

// rowChunk is a half-open row range for one worker.
type rowChunk struct {
	y0, y1 int
}

// rowPool runs a row-range function across persistent workers. The grids a
// pass reads are stable for the duration of the dispatch, and each row is
// written by exactly one worker.
type rowPool struct {
	numWorkers int
	fn         func(y0, y1 int)

	workChan chan rowChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func newRowPool(workers int) *rowPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &rowPool{numWorkers: workers}
}

func (p *rowPool) start() {
	if p.running {
		return
	}
	p.workChan = make(chan rowChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *rowPool) stop() {
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *rowPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.fn(chunk.y0, chunk.y1)
			p.doneChan <- struct{}{}
		}
	}
}

// run executes fn over [0, rows), chunked across the pool. The fn field is
// set per dispatch; run is only called from the simulation thread.
func (p *rowPool) run(rows int, fn func(y0, y1 int)) {
	if rows < parallelThreshold || p.numWorkers == 1 {
		fn(0, rows)
		return
	}
	if !p.running {
		p.start()
	}
	p.fn = fn

	chunkSize := (rows + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		y0 := w * chunkSize
		y1 := y0 + chunkSize
		if y1 > rows {
			y1 = rows
		}
		if y0 >= y1 {
			continue
		}
		p.workChan <- rowChunk{y0: y0, y1: y1}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}
