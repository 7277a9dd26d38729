package models

// ResourceRequirement is the concrete resource ask for one provisioning
// attempt, in control-plane units (CPU share where 100 = 1 core,
// memory and disk in MB). Immutable once built.
type ResourceRequirement struct {
	CPUShare   int
	MemoryMB   int64
	DiskMB     int64
	LocationID int
}

// NodeCandidate is a control-plane node as advertised at selection
// time. Always fetched fresh: concurrent buyers mutate the true
// allocation out-of-band, so caching these is never safe.
type NodeCandidate struct {
	ID                 int
	Name               string
	LocationID         int
	Maintenance        bool
	MemoryMB           int64
	DiskMB             int64
	MemoryOverallocate int // percent; -1 means unlimited
	DiskOverallocate   int // percent; -1 means unlimited
	AllocatedMemoryMB  int64
	AllocatedDiskMB    int64
}

// Allocation is a network endpoint (IP+port) on a node, assignable to
// exactly one server.
type Allocation struct {
	ID       int
	IP       string
	Port     int
	Assigned bool
}

// ScoredCandidate pairs a feasible node with its chosen allocation and
// fitness score. Score <= 0 marks an infeasible node and must be
// filtered out before ranking. Position is the node's index in the
// control-plane listing and breaks score ties.
type ScoredCandidate struct {
	NodeID       int
	AllocationID int
	Score        float64
	Position     int
}

// NodePlacement is the selector's answer: where to create the server.
type NodePlacement struct {
	NodeID       int
	AllocationID int
}
