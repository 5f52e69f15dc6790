package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/security"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

// errRejected makes scan exit non-zero once its report has been printed
var errRejected = errors.New("input rejected by policy")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bastion",
		Short:         "Offline threat scanning and security policy tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScanCmd(), newSanitizeCmd(), newPolicyCmd(), newKeygenCmd())
	return root
}

// policyFlags selects the preset and optional YAML overlay a command runs with
type policyFlags struct {
	env  string
	file string
}

func (p *policyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.env, "env", "production", "Policy preset: development or production")
	cmd.Flags().StringVar(&p.file, "policy-file", "", "YAML policy document overlaid on the preset")
}

func (p *policyFlags) load() (config.SecurityConfig, error) {
	cfg := config.SecurityPreset(p.env)
	if p.file != "" {
		loaded, err := config.LoadSecurityPolicyFile(p.file, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// scanReport is the JSON document printed by scan
type scanReport struct {
	Action      security.Action        `json:"action"`
	MaxSeverity string                 `json:"max_severity,omitempty"`
	Findings    []models.ThreatFinding `json:"findings"`
	Messages    []string               `json:"messages,omitempty"`
}

func newScanCmd() *cobra.Command {
	var (
		policy policyFlags
		field  string
	)

	cmd := &cobra.Command{
		Use:   "scan [text...]",
		Short: "Scan text (arguments or stdin lines) and print findings as JSON",
		Long:  "Scan runs every enabled detector family over the input and applies the\nrejection rule. It exits non-zero when the policy would reject the input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := policy.load()
			if err != nil {
				return err
			}

			inputs, err := collectInputs(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			engine := security.NewPolicyEngine(cfg, repositories.NewRateLimitBucketRepository(), clock.New(), events.Discard, logger)

			fields := make(map[string]any, len(inputs))
			if len(inputs) == 1 {
				fields[field] = inputs[0]
			} else {
				for i, in := range inputs {
					fields[fmt.Sprintf("%s[%d]", field, i)] = in
				}
			}

			findings := engine.Validate(fields, "")
			decision := engine.Decide(fields, findings)

			report := scanReport{
				Action:   decision.Action,
				Findings: findings,
				Messages: decision.ErrorMessages,
			}
			if report.Findings == nil {
				report.Findings = []models.ThreatFinding{}
			}
			if len(findings) > 0 {
				report.MaxSeverity = models.MaxSeverity(findings).String()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}

			if decision.Action == security.ActionReject {
				return errRejected
			}
			return nil
		},
	}

	policy.register(cmd)
	cmd.Flags().StringVar(&field, "field", "input", "Field name reported in findings")
	return cmd
}

func newSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize [text...]",
		Short: "HTML-entity-encode text (arguments or stdin lines)",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := collectInputs(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			for _, in := range inputs {
				fmt.Fprintln(cmd.OutOrStdout(), security.Sanitize(in))
			}
			return nil
		},
	}
}

func newPolicyCmd() *cobra.Command {
	var policy policyFlags

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the effective security policy as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := policy.load()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	policy.register(cmd)

	validate := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check that a YAML policy document parses and is within bounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := policyFlags{env: policy.env, file: args[0]}
			if _, err := p.load(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(validate)
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a random secret suitable for JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := pkgauth.GenerateSecret()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
}

// collectInputs returns args joined as one input, or the non-empty lines of r
func collectInputs(r io.Reader, args []string) ([]string, error) {
	if len(args) > 0 {
		return []string{strings.Join(args, " ")}, nil
	}

	var inputs []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			inputs = append(inputs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(inputs) == 0 {
		return nil, errors.New("no input: pass text as arguments or on stdin")
	}
	return inputs, nil
}
