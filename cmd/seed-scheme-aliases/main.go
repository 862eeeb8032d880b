package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mmdatafocus/rta_backend/config"
	"github.com/mmdatafocus/rta_backend/models"
	"github.com/mmdatafocus/rta_backend/store"
)

func main() {
	file := flag.String("file", "", "Required: alias YAML file")
	dryRun := flag.Bool("dry-run", false, "Validate and print the aliases without writing")
	allowMissing := flag.Bool("allow-missing", false, "Seed aliases even when the canonical scheme is not in the schemes table")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}
	aliases, err := config.LoadSchemeAliasFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()

	ctx := context.Background()
	st := store.NewGormStore(db)

	keys := make([]string, 0, len(aliases))
	for alias := range aliases {
		keys = append(keys, alias)
	}
	sort.Strings(keys)

	checked := map[string]bool{}
	missing := 0
	for _, alias := range keys {
		canonical := aliases[alias]
		if _, seen := checked[canonical]; !seen {
			_, err := st.SchemeById(ctx, canonical)
			switch {
			case err == nil:
				checked[canonical] = true
			case models.IsKind(err, models.KindNotFound):
				checked[canonical] = false
				missing++
				fmt.Fprintf(os.Stderr, "scheme %s not found\n", canonical)
			default:
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}
		fmt.Printf("%s -> %s\n", alias, canonical)
	}
	if missing > 0 && !*allowMissing {
		fmt.Fprintf(os.Stderr, "%d canonical schemes missing; pass --allow-missing to seed anyway\n", missing)
		os.Exit(1)
	}
	if *dryRun {
		return
	}

	n, err := st.UpsertSchemeAliases(ctx, aliases)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d aliases\n", n)
}
