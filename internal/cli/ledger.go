package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func RunLedgerShow(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	allDocs, err := boolFlag(cmd, "all")
	if err != nil {
		return err
	}

	proj, err := openProject(args[0])
	if err != nil {
		return err
	}

	if allDocs {
		docs := proj.Ledger.Documents()
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}
		if len(docs) == 0 {
			fmt.Println("ledger is empty")
			return nil
		}
		for _, doc := range docs {
			fmt.Printf("%s: %d recorded cell(s)\n", doc, len(proj.Ledger.Entries(doc)))
		}
		return nil
	}

	entries := proj.Ledger.Entries(proj.DocKey)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Printf("no executions recorded for %s\n", args[0])
		return nil
	}
	indices := make([]int, 0, len(entries))
	for idx := range entries {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		e := entries[idx]
		fmt.Printf("cell %d: %s at %s\n", idx, e.CodeHash, e.RecordedAt.Format(time.RFC3339))
	}
	return nil
}

func RunLedgerReset(cmd *cobra.Command, args []string) error {
	all, err := boolFlag(cmd, "all")
	if err != nil {
		return err
	}

	proj, err := openProject(args[0])
	if err != nil {
		return err
	}

	if all {
		if err := proj.Ledger.Reset(); err != nil {
			return err
		}
		fmt.Println("cleared execution records for all documents")
		return nil
	}
	if err := proj.Ledger.ResetDocument(proj.DocKey); err != nil {
		return err
	}
	fmt.Printf("cleared execution records for %s\n", args[0])
	return nil
}
