package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kratos-host/provisioning-service/internal/capacity"
	"github.com/kratos-host/provisioning-service/internal/models"
)

// NodeSelector picks the node and network allocation for a new server.
// Node state is fetched fresh on every call; selection and creation are
// not atomic, so a concurrent buyer can still win the last slot and the
// control-plane rejects the loser at create time.
type NodeSelector struct {
	panel PanelAPI
}

func NewNodeSelector(panel PanelAPI) *NodeSelector {
	return &NodeSelector{panel: panel}
}

// Select returns the best placement for the requirement. Nodes in
// maintenance or in the wrong location are filtered first; the
// remaining candidates have their free allocations fetched in parallel
// and are scored by capacity fit. A node whose allocation fetch fails
// is skipped rather than failing the whole selection.
func (s *NodeSelector) Select(ctx context.Context, req models.ResourceRequirement) (*models.NodePlacement, error) {
	nodes, err := s.panel.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var candidates []models.NodeCandidate
	for _, node := range nodes {
		if node.Maintenance {
			continue
		}
		if req.LocationID != 0 && node.LocationID != req.LocationID {
			continue
		}
		candidates = append(candidates, node)
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	var mu sync.Mutex
	var scored []models.ScoredCandidate

	g, gctx := errgroup.WithContext(ctx)
	for i, node := range candidates {
		i, node := i, node
		g.Go(func() error {
			allocations, err := s.panel.ListFreeAllocations(gctx, node.ID)
			if err != nil {
				log.Printf("[NodeSelector] Skipping node %d (%s): %v", node.ID, node.Name, err)
				return nil
			}
			if len(allocations) == 0 {
				return nil
			}

			score := capacity.Score(node, req)
			if score <= 0 {
				return nil
			}

			mu.Lock()
			scored = append(scored, models.ScoredCandidate{
				NodeID:       node.ID,
				AllocationID: allocations[0].ID,
				Score:        score,
				Position:     i,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(scored) == 0 {
		return nil, ErrNoFeasibleNode
	}

	// Ties break on listing order so the concurrent allocation fetch
	// cannot change the outcome.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Position < scored[j].Position
	})

	best := scored[0]
	log.Printf("[NodeSelector] Selected node %d (score %.2f) from %d feasible of %d candidates",
		best.NodeID, best.Score, len(scored), len(candidates))

	return &models.NodePlacement{
		NodeID:       best.NodeID,
		AllocationID: best.AllocationID,
	}, nil
}
