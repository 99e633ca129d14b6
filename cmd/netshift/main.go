// Netshift - BGP simulation and safe reconfiguration planning
//
// A CLI for evaluating reconfiguration scenarios and replaying the
// resulting decompositions:
//
//	netshift evaluate <topology> <scenario>     # plan a migration
//	netshift run <decomposition-file|run-name>  # replay a plan
//	netshift show <run-name>                    # inspect a stored run
//
// Exit codes: 0 success, 1 user error, 2 convergence failure,
// 3 scheduler infeasibility.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netshift-network/netshift/pkg/util"
	"github.com/netshift-network/netshift/pkg/version"
)

// App holds CLI state shared across all commands.
type App struct {
	// Option flags
	verbose    bool
	logLevel   string
	redisAddr  string
	redisDB    int
	queueKind  string
	queueSeed  int64
	specFile   string
	outputFile string
	saveName   string
	csvFile    string
}

var app = &App{}

const (
	exitOK           = 0
	exitUserError    = 1
	exitNoConverge   = 2
	exitInfeasible   = 3
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps error kinds to the documented exit codes.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, util.ErrNoConvergence):
		return exitNoConverge
	case errors.Is(err, util.ErrSchedulerInfeasible),
		errors.Is(err, util.ErrSchedulerTimeout):
		return exitInfeasible
	default:
		return exitUserError
	}
}

var rootCmd = &cobra.Command{
	Use:           "netshift",
	Short:         "BGP simulation and safe reconfiguration planning",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if app.verbose {
			app.logLevel = "debug"
		}
		return util.SetLogLevel(app.logLevel)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("netshift %s (%s)\n", version.Version, version.GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "warning", "log level (debug, info, warning, error)")
	rootCmd.PersistentFlags().StringVar(&app.redisAddr, "redis", "", "redis address of the run archive (enables --save and run-by-name)")
	rootCmd.PersistentFlags().IntVar(&app.redisDB, "redis-db", 0, "redis database of the run archive")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
}
