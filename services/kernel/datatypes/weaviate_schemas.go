// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// GetConceptEdgeSchema returns the schema for the ConceptEdge class.
//
// # Description
//
// ConceptEdge stores one directed relation from the relational inference
// graph. Both extracted and derived edges land here; the derived flag
// distinguishes them for offline analysis.
func GetConceptEdgeSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "ConceptEdge",
		Description: "A directed relation between two concepts from relational inference.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The unique ID for the session this edge belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "turn_id",
				DataType:        []string{"text"},
				Description:     "The turn that produced this edge.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "from_concept",
				DataType:        []string{"text"},
				Description:     "Source concept of the relation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "to_concept",
				DataType:        []string{"text"},
				Description:     "Target concept of the relation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "relation",
				DataType:        []string{"text"},
				Description:     "Relation label (e.g., 'supports', 'contradicts').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "confidence",
				DataType:    []string{"number"},
				Description: "Edge confidence in [0, 1].",
			},
			{
				Name:            "derived",
				DataType:        []string{"boolean"},
				Description:     "True if produced by transitive inference rather than extraction.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the edge was persisted.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetKernelSessionSchema returns the schema for the KernelSession class,
// which stores one state snapshot per completed turn.
func GetKernelSessionSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "KernelSession",
		Description: "Per-turn internal state snapshots for a kernel session.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The unique ID for the session.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "turn_id",
				DataType:        []string{"text"},
				Description:     "The turn this snapshot was taken after.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "trust_tau",
				DataType:    []string{"number"},
				Description: "Trust score after the turn, in [0, 1].",
			},
			{
				Name:        "tension",
				DataType:    []string{"number"},
				Description: "Tension signal after the turn.",
			},
			{
				Name:        "uncertainty",
				DataType:    []string{"number"},
				Description: "Uncertainty signal after the turn.",
			},
			{
				Name:        "contradiction",
				DataType:    []string{"number"},
				Description: "Contradiction score after the turn.",
			},
			{
				Name:            "regulation",
				DataType:        []string{"text"},
				Description:     "Regulation mode selected for the turn.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "repair_count",
				DataType:    []string{"int"},
				Description: "Repair iterations executed during the turn.",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the snapshot was persisted.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates the kernel classes if they do not exist.
// Safe to call on every startup.
func EnsureWeaviateSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetConceptEdgeSchema,
		GetKernelSessionSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err != nil {
			// Class missing; the getter errors on absent classes.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
				return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
	return nil
}
