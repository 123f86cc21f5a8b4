/*
Package workers sizes and bounds concurrent conversion work in containerized
environments.

# Overview

When running in a container the number of usable CPUs may be limited by cgroup
constraints. runtime.NumCPU() still reports the host's CPU count, while
GOMAXPROCS (Go 1.19+) follows the container limit. The helpers in this package
use GOMAXPROCS so worker counts follow the container:

	// Image and document transforms are CPU-bound
	n := workers.ForCPU(8)

	// Remote uploads mostly wait on the network
	n := workers.ForIO(16)

# Environment Variable Override

All functions respect CONVERT_WORKERS:

	env:
	- name: CONVERT_WORKERS
	  value: "4"

# Limiter

[Limiter] is a counting semaphore sized from one of the helpers. The HTTP
layer takes a slot for every conversion so a burst of uploads cannot decode
more images at once than there are CPUs:

	lim := workers.NewLimiter(workers.ForCPU(8))
	if err := lim.Acquire(ctx); err != nil {
	    return err
	}
	defer lim.Release()
*/
package workers
