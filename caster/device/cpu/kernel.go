package cpu

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// A kernel builder validates the bound argument list once and returns the
// per-invocation function. Invocations receive their global thread id and
// must bounds-check it themselves, exactly like their device-side
// counterparts: the dispatch grid may overshoot the problem size.
type kernelBuilder func(args []interface{}) (func(gid [3]uint32), error)

// The kernels implementing the collision pipeline, by submission name.
var kernelTable = map[string]kernelBuilder{
	"generateRays":      buildGenerateRays,
	"findLeaves":        buildFindLeaves,
	"sortCandidates":    buildSortCandidates,
	"resolveCollisions": buildResolveCollisions,
}

type Kernel struct {
	name  string
	build kernelBuilder
	args  []interface{}
}

func (k *Kernel) Name() string {
	return k.name
}

// Bind arguments to the kernel.
func (k *Kernel) SetArgs(args ...interface{}) error {
	k.args = args
	return nil
}

// Execute the kernel over the given workgroup grid. Workgroups are spread
// across one worker per CPU; invocations within one group run sequentially
// on the claiming worker. Intra-group execution order is unspecified from
// the kernel's point of view, matching the device execution model.
func (k *Kernel) Exec(groups, local [3]uint32) (time.Duration, error) {
	start := time.Now()

	run, err := k.build(k.args)
	if err != nil {
		return 0, err
	}

	groupCount := uint64(groups[0]) * uint64(groups[1]) * uint64(groups[2])
	if groupCount == 0 {
		return time.Since(start), nil
	}

	workers := runtime.NumCPU()
	var next uint64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				g := atomic.AddUint64(&next, 1) - 1
				if g >= groupCount {
					return
				}

				gx := uint32(g % uint64(groups[0]))
				gy := uint32(g / uint64(groups[0]) % uint64(groups[1]))
				gz := uint32(g / (uint64(groups[0]) * uint64(groups[1])))
				for lz := uint32(0); lz < local[2]; lz++ {
					for ly := uint32(0); ly < local[1]; ly++ {
						for lx := uint32(0); lx < local[0]; lx++ {
							run([3]uint32{
								gx*local[0] + lx,
								gy*local[1] + ly,
								gz*local[2] + lz,
							})
						}
					}
				}
			}
		}()
	}
	wg.Wait()

	return time.Since(start), nil
}

func (k *Kernel) Release() {
	k.args = nil
}
