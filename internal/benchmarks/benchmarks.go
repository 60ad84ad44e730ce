// Package benchmarks measures the cost of lowering symbolic op graphs into
// backend programs, and compares the execution of the lowered programs
// against hand-written Go loops over the same data.
package benchmarks

import (
	"flag"
	"fmt"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var flagBenchDuration = flag.Duration("bench_duration", 0,
	"Duration for each go-benchmarks run. A value of 0 skips them.")

func init() {
	klog.InitFlags(nil)
}

// goVectorFunc is the signature of the per-element Go reference programs.
type goVectorFunc func(inputs, outputs []float32)

// parallelizeGoVectorFunc splits large inputs across the available CPUs.
func parallelizeGoVectorFunc(fn goVectorFunc) goVectorFunc {
	return func(inputs, outputs []float32) {
		numInputs := len(inputs)
		if numInputs < 100_000 {
			fn(inputs, outputs)
			return
		}

		numCPU := runtime.NumCPU()
		chunkSize := numInputs / numCPU
		var wg sync.WaitGroup
		wg.Add(numCPU)
		for i := range numCPU {
			start := i * chunkSize
			end := (i + 1) * chunkSize
			if i == numCPU-1 {
				end = numInputs
			}
			go func(start, end int) {
				defer wg.Done()
				fn(inputs[start:end], outputs[start:end])
			}(start, end)
		}
		wg.Wait()
	}
}

// formatDuration formats the duration with 2 decimal places but keeping the unit suffix.
func formatDuration(d time.Duration) string {
	s := d.String()
	i := 0
	for ; i < len(s); i++ {
		if (s[i] < '0' || s[i] > '9') && s[i] != '.' {
			break
		}
	}
	num := s[:i]
	unit := s[i:]
	var f float64
	if _, err := fmt.Sscanf(num, "%g", &f); err != nil {
		return s
	}
	return fmt.Sprintf("%.2f%s", f, unit)
}

// requireSameTensorsFloat32 compares two tensors and fails the test if they are not within a delta margin.
func requireSameTensorsFloat32(t *testing.T, want, got *tensors.Tensor, delta float64) {
	require.True(t, got.Shape().Equal(want.Shape()))
	flatIdx := 0
	gotFlat := tensors.CopyFlatData[float32](got)
	wantFlat := tensors.CopyFlatData[float32](want)
	var mismatches int
	for indices := range got.Shape().Iter() {
		gotValue := gotFlat[flatIdx]
		wantValue := wantFlat[flatIdx]
		if math.Abs(float64(gotValue)-float64(wantValue)) > delta {
			if mismatches < 3 {
				fmt.Printf("\tIndex %v (flatIdx=%d) has a mismatch: got %f, want %f\n", indices, flatIdx, gotValue, wantValue)
			} else if mismatches == 4 {
				fmt.Printf("\t...\n")
			}
			mismatches++
		}
		flatIdx++
	}
	if mismatches > 0 {
		fmt.Printf("Found %d mismatches in tensors\n", mismatches)
		panic(errors.Errorf("found %d mismatches in tensors", mismatches))
	}
}
