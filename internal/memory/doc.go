// Package memory keeps thumbnail generation inside the container's memory
// budget.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
// when GOMEMLIMIT itself is not set:
//
//	MEMORY_LIMIT=2147483648 MEMORY_RATIO=0.8  ->  GOMEMLIMIT ~ 1.6GiB
//
// A [Monitor] samples heap allocation against that limit. Once usage reaches
// PauseAt, [Monitor.Wait] blocks pipeline workers before they decode the
// next image; they are released when usage falls below ResumeAt.
package memory
