// Command inspect prints the observation archive written by reflexd:
// per-domain observation history and the intervention decisions taken.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Thunderblok/thunderline-sub016/internal/history"
	"github.com/Thunderblok/thunderline-sub016/internal/monitor"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to reflex_history.db")
	domain := flag.String("domain", "", "domain to inspect (empty lists domains)")
	last := flag.Int("last", 20, "show N most recent records")
	decisions := flag.Bool("decisions", false, "show decisions instead of observations")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/reflex_history.db [--domain name] [--last N] [--decisions] [--json]")
		os.Exit(2)
	}

	store, err := history.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *domain == "":
		err = runDomainsMode(store, *jsonOut)
	case *decisions:
		err = runDecisionsMode(store, *domain, *last, *jsonOut)
	default:
		err = runObservationsMode(store, *domain, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region domains-mode

func runDomainsMode(store *history.Store, jsonOut bool) error {
	domains, err := store.Domains()
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		fmt.Fprintln(os.Stderr, "no domains found")
		return nil
	}
	if jsonOut {
		return printJSON(domains)
	}
	for _, d := range domains {
		fmt.Println(d)
	}
	return nil
}

// #endregion domains-mode

// #region observations-mode

func runObservationsMode(store *history.Store, domain string, last int, jsonOut bool) error {
	obs, err := store.Observations(domain, 0)
	if err != nil {
		return err
	}
	if len(obs) == 0 {
		fmt.Fprintln(os.Stderr, "no observations found")
		return nil
	}
	if last > 0 && len(obs) > last {
		obs = obs[len(obs)-last:]
	}
	if jsonOut {
		return printJSON(obs)
	}

	fmt.Printf("%-8s  %6s  %6s  %7s  %6s  %-8s  %s\n",
		"Tick", "PLV", "Sigma", "Lambda", "RTau", "Band", "Time")
	for _, o := range obs {
		fmt.Printf("%-8d  %6.3f  %6.3f  %7.3f  %6.3f  %-8s  %s\n",
			o.Tick, o.PLV, o.Sigma, o.Lambda, o.RTau, o.Bands.Overall,
			o.Timestamp.Format("2006-01-02T15:04:05Z"))
	}
	fmt.Printf("\n%d observations, band counts: %s\n", len(obs), bandCounts(obs))
	return nil
}

func bandCounts(obs []monitor.Observation) string {
	counts := map[monitor.Band]int{}
	for _, o := range obs {
		counts[o.Bands.Overall]++
	}
	return fmt.Sprintf("healthy=%d watch=%d critical=%d",
		counts[monitor.BandHealthy], counts[monitor.BandWatch], counts[monitor.BandCritical])
}

// #endregion observations-mode

// #region decisions-mode

func runDecisionsMode(store *history.Store, domain string, last int, jsonOut bool) error {
	decs, err := store.Decisions(domain, 0)
	if err != nil {
		return err
	}
	if len(decs) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found")
		return nil
	}
	if last > 0 && len(decs) > last {
		decs = decs[len(decs)-last:]
	}
	if jsonOut {
		return printJSON(decs)
	}

	fmt.Printf("%-8s  %-18s  %-24s  %s\n", "Tick", "Action", "Alerts", "Time")
	for _, d := range decs {
		fmt.Printf("%-8d  %-18s  %-24s  %s\n",
			d.Tick, d.Action, alertTypes(d.Alerts),
			d.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func alertTypes(alerts []monitor.Alert) string {
	if len(alerts) == 0 {
		return "-"
	}
	s := ""
	for i, a := range alerts {
		if i > 0 {
			s += ","
		}
		s += string(a.Type)
	}
	return s
}

// #endregion decisions-mode

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
