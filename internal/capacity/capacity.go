// Package capacity computes node headroom and fitness scores. Pure
// computation, no I/O.
package capacity

import (
	"math"

	"github.com/kratos-host/provisioning-service/internal/models"
)

// Infeasible is the sentinel returned when a node cannot hold the
// requirement. Callers must exclude such nodes, never rank them.
const Infeasible = -1.0

// Weighting between the bottleneck resource and overall headroom
const (
	bottleneckWeight = 0.7
	headroomWeight   = 0.3
)

// AvailableMemoryMB returns the node's memory headroom in MB, with the
// overallocation factor applied. A -1 overallocation percentage means
// unlimited and yields +Inf.
func AvailableMemoryMB(n models.NodeCandidate) float64 {
	if n.MemoryOverallocate < 0 {
		return math.Inf(1)
	}
	total := float64(n.MemoryMB) * (1 + float64(n.MemoryOverallocate)/100)
	return total - float64(n.AllocatedMemoryMB)
}

// AvailableDiskMB returns the node's disk headroom in MB, same rules as
// AvailableMemoryMB.
func AvailableDiskMB(n models.NodeCandidate) float64 {
	if n.DiskOverallocate < 0 {
		return math.Inf(1)
	}
	total := float64(n.DiskMB) * (1 + float64(n.DiskOverallocate)/100)
	return total - float64(n.AllocatedDiskMB)
}

// Score rates how well a node fits a requirement. Infeasible nodes
// (insufficient memory or disk) return the Infeasible sentinel. For
// feasible nodes the score weighs the most constrained resource
// heavily so a node abundant in one dimension but starved in the other
// ranks below a balanced one, with a secondary term rewarding overall
// headroom. Higher is better.
func Score(n models.NodeCandidate, req models.ResourceRequirement) float64 {
	availMemory := AvailableMemoryMB(n)
	availDisk := AvailableDiskMB(n)

	if availMemory < float64(req.MemoryMB) || availDisk < float64(req.DiskMB) {
		return Infeasible
	}

	memoryScore := availMemory / float64(req.MemoryMB)
	diskScore := availDisk / float64(req.DiskMB)

	return bottleneckWeight*math.Min(memoryScore, diskScore) +
		headroomWeight*(memoryScore+diskScore)/2
}
