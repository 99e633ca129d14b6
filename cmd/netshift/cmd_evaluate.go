package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/netshift-network/netshift/pkg/decompose"
	"github.com/netshift-network/netshift/pkg/runtime"
	"github.com/netshift-network/netshift/pkg/scenario"
	"github.com/netshift-network/netshift/pkg/sim"
	"github.com/netshift-network/netshift/pkg/spec"
	"github.com/netshift-network/netshift/pkg/store"
	"github.com/netshift-network/netshift/pkg/util"
)

// EvaluationRecord is the JSON output of the evaluate command: the
// serialized source network, the decomposition, and the replay
// statistics with the convergence trace.
type EvaluationRecord struct {
	Topology      string          `json:"topology"`
	Scenario      string          `json:"scenario"`
	SpecKind      string          `json:"spec_kind"`
	Network       json.RawMessage `json:"network"`
	Decomposition json.RawMessage `json:"decomposition"`
	Stats         *runtime.Stats  `json:"stats"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <topology> <scenario>",
	Short: "Plan a reconfiguration and verify it by simulated replay",
	Long: `Evaluate builds the named topology (linear, clique4, abilene), applies
the scenario tag (del-best-route, add-best-route, del-session,
add-session), decomposes the change under the specification, and
replays the schedule in the simulator.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluate(args[0], args[1])
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&app.specFile, "spec", "", "specification YAML (default: reachability for all routers)")
	evaluateCmd.Flags().StringVar(&app.queueKind, "queue", "basic", "event queue for the replay (basic, timing, geo)")
	evaluateCmd.Flags().Int64Var(&app.queueSeed, "seed", 1, "seed of the timing queues")
	evaluateCmd.Flags().StringVarP(&app.outputFile, "output", "o", "", "write the evaluation record to a file instead of stdout")
	evaluateCmd.Flags().StringVar(&app.saveName, "save", "", "store the record in the run archive under this name")
}

func buildQueue() (sim.EventQueue, error) {
	switch app.queueKind {
	case "basic":
		return sim.NewBasicQueue(), nil
	case "timing":
		return sim.NewTimingQueue(sim.DefaultModelParams(), app.queueSeed), nil
	case "geo":
		return sim.NewGeoTimingQueue(sim.DefaultModelParams(), app.queueSeed), nil
	default:
		return nil, fmt.Errorf("unknown queue kind '%s'", app.queueKind)
	}
}

func runEvaluate(topology, event string) error {
	queue, err := buildQueue()
	if err != nil {
		return err
	}
	sc, err := scenario.Build(topology, event, queue)
	if err != nil {
		return err
	}

	specKind := "reachability"
	var sp spec.Specification
	if app.specFile != "" {
		specKind = app.specFile
		loader := spec.NewLoader(app.specFile)
		if err := loader.Load(); err != nil {
			return err
		}
		sp, err = loader.Build(sc.Net)
		if err != nil {
			return err
		}
	} else {
		sp = spec.BuildReachability(sc.Net, sc.Prefix)
	}

	log := util.WithOperation("evaluate")
	log.Infof("decomposing %s on %s", event, topology)
	start := time.Now()
	decomp, err := decompose.Decompose(sc.Net, sc.Command, sp, decompose.Options{
		SolverTimeout: 30 * time.Second,
	})
	if err != nil {
		return err
	}
	log.Infof("scheduled %d rounds in %s", decomp.Rounds(), time.Since(start))

	stats, err := runtime.Run(sc.Net.Clone(), decomp, sp)
	if err != nil {
		return err
	}

	netData, err := json.Marshal(sc.Net)
	if err != nil {
		return err
	}
	decompData, err := json.Marshal(decomp)
	if err != nil {
		return err
	}
	record := &EvaluationRecord{
		Topology:      topology,
		Scenario:      event,
		SpecKind:      specKind,
		Network:       netData,
		Decomposition: decompData,
		Stats:         stats,
	}

	if app.saveName != "" {
		if app.redisAddr == "" {
			return fmt.Errorf("--save requires --redis")
		}
		archive := store.NewArchive(app.redisAddr, app.redisDB)
		defer archive.Close()
		statsData, _ := json.Marshal(stats)
		if err := archive.Save(context.Background(), &store.RunRecord{
			Name:          app.saveName,
			Topology:      topology,
			Scenario:      event,
			SpecKind:      specKind,
			CreatedAt:     time.Now().UTC(),
			Network:       netData,
			Decomposition: decompData,
			Stats:         statsData,
		}); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	if app.outputFile != "" {
		return os.WriteFile(app.outputFile, append(out, '\n'), 0o644)
	}
	fmt.Println(string(out))
	return nil
}
