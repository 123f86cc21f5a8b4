// Package memory keeps the conversion service inside its container memory
// limit.
//
// # GOMEMLIMIT
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT (Kubernetes Downward
// API) or the cgroup v2 memory.max file, scaled by MEMORY_RATIO (default
// 0.7). An explicit GOMEMLIMIT is left alone. The ratio is lower than for a
// pure Go service because ffmpeg and libvips allocate outside the Go heap.
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//
// # Admission control
//
// Uploads and their converted outputs are held in memory. A [Monitor]
// samples the heap and, above the critical water mark, makes
// [Monitor.Admit] block new conversions until usage drops below the high
// water mark. Requests already running are not affected.
package memory
