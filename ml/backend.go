package ml

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// Backend executes the dense matrix-vector products of the forward pass.
// Both implementations compute each output row in the same operation order,
// so results are identical; only scheduling differs.
type Backend interface {
	Name() string
	MatVec(weights []float32, rows, cols int, in, out []float32)
}

// SelectBackend resolves the numeric backend once, at model load. "auto"
// enables the parallel backend when the CPU advertises wide vector units or
// has enough cores for the fan-out to pay off; it never changes after load.
func SelectBackend(mode string) (Backend, error) {
	switch mode {
	case "", "auto":
		if acceleratedCPU() {
			return newParallelBackend(), nil
		}
		return serialBackend{}, nil
	case "parallel":
		return newParallelBackend(), nil
	case "serial":
		return serialBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", mode)
	}
}

func acceleratedCPU() bool {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		return true
	}
	return runtime.NumCPU() >= 4
}

// Accelerated reports whether the backend is the parallel one. Surfaced via
// the health endpoint only; output values never depend on it.
func Accelerated(b Backend) bool {
	return b != nil && b.Name() == "parallel"
}

type serialBackend struct{}

func (serialBackend) Name() string { return "serial" }

func (serialBackend) MatVec(weights []float32, rows, cols int, in, out []float32) {
	for r := 0; r < rows; r++ {
		out[r] = dotRow(weights, r, cols, in)
	}
}

type parallelBackend struct {
	workers int
}

func newParallelBackend() parallelBackend {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return parallelBackend{workers: workers}
}

func (parallelBackend) Name() string { return "parallel" }

func (b parallelBackend) MatVec(weights []float32, rows, cols int, in, out []float32) {
	if rows < b.workers*2 {
		serialBackend{}.MatVec(weights, rows, cols, in, out)
		return
	}

	chunk := (rows + b.workers - 1) / b.workers
	var wg sync.WaitGroup
	for start := 0; start < rows; start += chunk {
		end := start + chunk
		if end > rows {
			end = rows
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for r := s; r < e; r++ {
				out[r] = dotRow(weights, r, cols, in)
			}
		}(start, end)
	}
	wg.Wait()
}

func dotRow(weights []float32, row, cols int, in []float32) float32 {
	off := row * cols
	var sum float32
	for c := 0; c < cols; c++ {
		sum += weights[off+c] * in[c]
	}
	return sum
}
