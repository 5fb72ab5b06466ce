// Command onboarding runs the HubSpot onboarding manager.
//
// Usage:
//
//	onboarding serve [--config file]
//	onboarding crawl --project ID --website ID [--max-pages N --max-depth N]
//
// Configuration comes from the optional config file and the environment.
// DATABASE_URL or the DB_* variables select the database, and PORT overrides
// the listen port. Every other key is read from ONBOARDING_<SECTION>_<KEY>.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
