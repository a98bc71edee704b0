package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jxucoder/dasa/internal/config"
	"github.com/jxucoder/dasa/internal/session"
)

func RunLog(cmd *cobra.Command, args []string) error {
	n, err := intFlag(cmd, "n")
	if err != nil {
		return err
	}
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return fmt.Errorf("failed to read --dir flag: %w", err)
	}

	log := session.OpenLog(filepath.Join(dir, config.Dir))
	lines, err := log.Recent(n)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Println("no activity recorded")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
