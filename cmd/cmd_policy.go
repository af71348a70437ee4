package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/perfcal/internal/config"
)

var policyFlags struct {
	tenant string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect tenant policies",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configured policies and print the resolved one",
	Long: `Loads configuration the same way serve does and validates the default
policy and every tenant override. With --tenant the resolved policy for that
tenant is printed as YAML.`,
	Args: cobra.NoArgs,
	RunE: runPolicyCheck,
}

func init() {
	policyCheckCmd.Flags().StringVar(&policyFlags.tenant, "tenant", "", "print the resolved policy of this tenant")
	policyCmd.AddCommand(policyCheckCmd)
}

func runPolicyCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	policies, err := cfg.Policies()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	tenants := make([]string, 0, len(cfg.Tenants))
	for id := range cfg.Tenants {
		tenants = append(tenants, id)
	}
	sort.Strings(tenants)
	fmt.Fprintf(out, "policies ok: default + %d tenant override(s)\n", len(tenants))
	for _, id := range tenants {
		fmt.Fprintf(out, "  %s\n", id)
	}

	if policyFlags.tenant == "" {
		return nil
	}
	p, err := policies.Policy(ctx, policyFlags.tenant)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	fmt.Fprintf(out, "---\n%s", b)
	return nil
}
