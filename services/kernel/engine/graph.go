// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/ledger"
)

// WeaviateGraph persists concept edges and state snapshots to Weaviate.
//
// # Description
//
// Writes are best-effort analytics off the turn's critical path; the
// engine logs failures and moves on. The badger ledger, not Weaviate, is
// the durability boundary for turn state.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is.
type WeaviateGraph struct {
	client *weaviate.Client
}

var _ GraphPersister = (*WeaviateGraph)(nil)

// NewWeaviateGraph wraps a connected client.
func NewWeaviateGraph(client *weaviate.Client) *WeaviateGraph {
	return &WeaviateGraph{client: client}
}

// PersistEdges implements GraphPersister.
func (g *WeaviateGraph) PersistEdges(ctx context.Context, sessionID, turnID string, edges []datatypes.InferenceEdge) error {
	if len(edges) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(edges))
	for _, edge := range edges {
		objects = append(objects, &models.Object{
			Class: "ConceptEdge",
			Properties: map[string]interface{}{
				"session_id":   sessionID,
				"turn_id":      turnID,
				"from_concept": edge.From,
				"to_concept":   edge.To,
				"relation":     edge.Relation,
				"confidence":   edge.Confidence,
				"derived":      edge.Derived,
			},
		})
	}

	if _, err := g.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx); err != nil {
		return fmt.Errorf("batching concept edges: %w", err)
	}
	return nil
}

// PersistSnapshot implements GraphPersister.
func (g *WeaviateGraph) PersistSnapshot(ctx context.Context, snap ledger.Snapshot) error {
	_, err := g.client.Data().Creator().
		WithClassName("KernelSession").
		WithProperties(map[string]interface{}{
			"session_id":    snap.SessionID,
			"turn_id":       snap.TurnID,
			"trust_tau":     snap.State.TrustTau,
			"tension":       snap.State.SIM.Tension,
			"uncertainty":   snap.State.SIM.Uncertainty,
			"contradiction": snap.State.Contradiction,
			"regulation":    snap.State.Regulation.String(),
			"repair_count":  snap.State.RepairCount,
			"timestamp":     snap.Timestamp.UnixMilli(),
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("storing state snapshot: %w", err)
	}
	return nil
}
