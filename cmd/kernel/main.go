// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command kernel starts the coherence kernel HTTP server.
//
// # Usage
//
//	# Build
//	go build -o kernel ./cmd/kernel
//
//	# Run with defaults (Ollama-only cascade, in-memory ledger)
//	./kernel serve
//
//	# Run with a config file
//	./kernel serve --config config.yaml
//
// # Environment Variables
//
//   - KERNEL_PORT: HTTP server port override
//   - KERNEL_BADGER_PATH: durable ledger directory override
//   - WEAVIATE_HOST / WEAVIATE_SCHEME: knowledge graph (optional)
//   - INFLUXDB_URL / INFLUXDB_TOKEN / INFLUXDB_ORG / INFLUXDB_BUCKET: analytics sink (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: trace collector (optional)
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / OLLAMA_BASE_URL: provider credentials
package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CoherenceKernel/pkg/logging"
	"github.com/AleutianAI/CoherenceKernel/services/kernel"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	configPath string
	logLevel   string
	logDir     string
)

var rootCmd = &cobra.Command{
	Use:   "kernel",
	Short: "Coherence kernel service",
	Long:  "A conversational coherence kernel: per-session trust signals, bounded repair, and a multi-model agent cascade.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kernel HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New(logging.Config{
			Level:   logging.ParseLevel(logLevel),
			LogDir:  logDir,
			Service: "kernel",
		})
		defer logger.Close()
		logger.SetAsDefault()

		svc, err := kernel.New(configPath)
		if err != nil {
			return fmt.Errorf("failed to create the kernel service: %w", err)
		}
		return svc.Run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kernel version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (stderr only when empty)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
