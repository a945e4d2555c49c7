// Command replay re-runs archived observations through a fresh stream
// monitor and diffs the interventions it chooses now against the ones
// recorded at the time. A drift means thresholds or monitor logic
// changed since the archive was written.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Thunderblok/thunderline-sub016/internal/config"
	"github.com/Thunderblok/thunderline-sub016/internal/history"
	"github.com/Thunderblok/thunderline-sub016/internal/irope"
	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
	"github.com/Thunderblok/thunderline-sub016/internal/telemetry"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to reflex_history.db")
	domain := flag.String("domain", "", "replay a single domain (empty replays all)")
	verbose := flag.Bool("v", false, "print every tick, not only drifts")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/reflex_history.db [--domain name] [-v]")
		os.Exit(2)
	}

	store, err := history.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	domains := []string{*domain}
	if *domain == "" {
		domains, err = store.Domains()
		if err != nil {
			fmt.Fprintf(os.Stderr, "list domains: %v\n", err)
			os.Exit(1)
		}
	}
	if len(domains) == 0 {
		fmt.Fprintln(os.Stderr, "no domains found")
		os.Exit(0)
	}

	drifts := 0
	for _, d := range domains {
		n, err := replayDomain(store, d, *verbose)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", d, err)
			os.Exit(1)
		}
		drifts += n
	}

	if drifts > 0 {
		fmt.Printf("\n%d drifted decisions\n", drifts)
		os.Exit(1)
	}
	fmt.Println("\nno drift")
}

// #endregion main

// #region replay

// replayDomain feeds one domain's archived observations through a fresh
// monitor and returns the number of drifted decisions.
func replayDomain(store *history.Store, domain string, verbose bool) (int, error) {
	obs, err := store.Observations(domain, 0)
	if err != nil {
		return 0, err
	}
	if len(obs) == 0 {
		return 0, nil
	}

	archived, err := store.Decisions(domain, 0)
	if err != nil {
		return 0, err
	}
	recorded := make(map[int64]irope.Action, len(archived))
	for _, d := range archived {
		recorded[d.Tick] = d.Action
	}

	mon := monitor.New(config.Default(), slog.New(slog.DiscardHandler), telemetry.NewNop(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	fmt.Printf("domain %s: %d observations\n", domain, len(obs))
	drifts := 0
	for _, o := range obs {
		result := mon.Observe(domain, o)
		replayed := result.Intervention
		was := recorded[o.Tick]

		if replayed != was {
			drifts++
			fmt.Printf("  tick %-8d DRIFT  archived=%-18s replayed=%-18s plv=%.3f sigma=%.3f lambda=%.3f\n",
				o.Tick, orNone(was), orNone(replayed), o.PLV, o.Sigma, o.Lambda)
		} else if verbose {
			fmt.Printf("  tick %-8d ok     action=%-18s\n", o.Tick, orNone(replayed))
		}
	}
	return drifts, nil
}

func orNone(a irope.Action) string {
	if a == "" {
		return "none"
	}
	return string(a)
}

// #endregion replay
