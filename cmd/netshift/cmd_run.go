package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/netshift-network/netshift/pkg/decompose"
	"github.com/netshift-network/netshift/pkg/runtime"
	"github.com/netshift-network/netshift/pkg/sim"
	"github.com/netshift-network/netshift/pkg/spec"
	"github.com/netshift-network/netshift/pkg/store"
)

var runCmd = &cobra.Command{
	Use:   "run <decomposition-file|run-name>",
	Short: "Replay a decomposition in the simulator",
	Long: `Run loads an evaluation record (from a file, or from the run archive
when --redis is set and no such file exists), rebuilds the network, and
replays the decomposition step by step, printing the trace log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&app.csvFile, "csv", "", "write per-step forwarding deltas as CSV")
}

func loadRecord(source string) (*EvaluationRecord, error) {
	if data, err := os.ReadFile(source); err == nil {
		var record EvaluationRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("parsing record file: %w", err)
		}
		return &record, nil
	}
	if app.redisAddr == "" {
		return nil, fmt.Errorf("no file '%s' and no --redis archive configured", source)
	}
	archive := store.NewArchive(app.redisAddr, app.redisDB)
	defer archive.Close()
	stored, err := archive.Load(context.Background(), source)
	if err != nil {
		return nil, err
	}
	return &EvaluationRecord{
		Topology:      stored.Topology,
		Scenario:      stored.Scenario,
		SpecKind:      stored.SpecKind,
		Network:       stored.Network,
		Decomposition: stored.Decomposition,
	}, nil
}

func runReplay(source string) error {
	record, err := loadRecord(source)
	if err != nil {
		return err
	}

	net, err := sim.UnmarshalNetwork(record.Network)
	if err != nil {
		return err
	}
	var decomp decompose.Decomposition
	if err := json.Unmarshal(record.Decomposition, &decomp); err != nil {
		return fmt.Errorf("parsing decomposition: %w", err)
	}

	sp := make(spec.Specification)
	for prefix := range decomp.Schedule {
		for _, inv := range spec.BuildReachability(net, prefix)[prefix] {
			sp.Add(inv)
		}
	}

	fmt.Printf("replaying %s/%s: %d setup, %d rounds, %d cleanup\n",
		record.Topology, record.Scenario, len(decomp.Setup), decomp.Rounds(), len(decomp.Cleanup))

	stats, err := runtime.Run(net, &decomp, sp)
	if err != nil {
		return err
	}

	fmt.Printf("replay complete: %d steps, routes %d -> %d (max %d)\n",
		stats.Steps, stats.RoutesBefore, stats.RoutesAfter, stats.MaxRoutes)

	if app.csvFile != "" {
		if err := writeDeltaCSV(app.csvFile, stats); err != nil {
			return err
		}
	}
	return nil
}

// writeDeltaCSV emits one row per router change per step.
func writeDeltaCSV(path string, stats *runtime.Stats) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"step", "prefix", "router", "old", "new"}); err != nil {
		return err
	}
	for step, diff := range stats.FwDeltas {
		for prefix, deltas := range diff {
			for _, d := range deltas {
				row := []string{
					strconv.Itoa(step),
					prefix.String(),
					d.Router.String(),
					fmt.Sprintf("%v", d.Old),
					fmt.Sprintf("%v", d.New),
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
		}
	}
	return w.Error()
}
