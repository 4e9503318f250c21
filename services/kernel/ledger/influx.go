// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// InfluxSink exports per-attempt analytics points. Fire-and-forget: the
// non-blocking write API batches in the background, and export failures
// never affect turn processing.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInfluxSink connects the analytics sink.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)

	errorsCh := writeAPI.Errors()
	go func() {
		for err := range errorsCh {
			slog.Warn("Influx export error", "error", err)
		}
	}()

	return &InfluxSink{client: client, writeAPI: writeAPI}
}

// Export queues one point per contribution record.
func (s *InfluxSink) Export(records []datatypes.ContributionRecord) {
	for _, r := range records {
		p := influxdb2.NewPointWithMeasurement("model_contributions").
			AddTag("model", r.Model).
			AddTag("agent", r.Agent).
			AddTag("error_type", string(r.ErrorType)).
			AddField("contributed", r.Contributed).
			AddField("offline", r.Offline).
			AddField("tokens_used", r.TokensUsed).
			AddField("cost_usd", r.CostUSD).
			AddField("latency_ms", r.LatencyMs).
			SetTime(r.Timestamp)
		s.writeAPI.WritePoint(p)
	}
}

// ExportSnapshot queues one point for the post-turn state.
func (s *InfluxSink) ExportSnapshot(snap Snapshot) {
	p := influxdb2.NewPointWithMeasurement("kernel_state").
		AddTag("session_id", snap.SessionID).
		AddTag("regulation", snap.State.Regulation.String()).
		AddField("trust_tau", snap.State.TrustTau).
		AddField("tension", snap.State.SIM.Tension).
		AddField("uncertainty", snap.State.SIM.Uncertainty).
		AddField("emotional_intensity", snap.State.SIM.EmotionalIntensity).
		AddField("contradiction", snap.State.Contradiction).
		AddField("repair_count", snap.State.RepairCount).
		SetTime(snap.Timestamp)
	s.writeAPI.WritePoint(p)
}

// Close flushes pending points and shuts the client down.
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
