package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/perfcal/internal/domain/audit"
)

var verifyFlags struct {
	format string
}

var verifyCmd = &cobra.Command{
	Use:   "verify <artifact-file>",
	Short: "Check an exported audit artifact offline",
	Long: `Parses a JSON or YAML audit artifact and recomputes its identifier and
content digest. The format follows the file extension unless --format is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFlags.format, "format", "", "json or yaml (default: by extension)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	a, err := audit.Parse(data, formatOf(path, verifyFlags.format))
	if err != nil {
		return fmt.Errorf("parse artifact: %w", err)
	}
	if err := audit.Verify(a); err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "artifact %s verified (session %s, version %d, %d rows)\n",
		a.ID, a.SessionID, a.Version, len(a.Rows))
	return nil
}

func formatOf(path, flag string) audit.Format {
	if flag != "" {
		return audit.Format(strings.ToLower(flag))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return audit.FormatYAML
	}
	return audit.FormatJSON
}
