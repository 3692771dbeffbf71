package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"licensecore/internal/grace"
	"licensecore/internal/license"
	"licensecore/internal/storage"
	"licensecore/internal/token"
)

const timeLayout = "2006-01-02 15:04 MST"

func (c *cli) fingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the hardware fingerprint of this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.load(cmd)
			if err != nil {
				return err
			}
			fingerprints := c.fingerprintsFor(env)

			fp, err := fingerprints.Fingerprint(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to compute fingerprint: %w", err)
			}
			score := fingerprints.StrengthScore(cmd.Context())

			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"fingerprint":   fp,
					"strengthScore": score,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fingerprint: %s\n", fp)
			fmt.Fprintf(out, "Strength:    %d/100\n", score)
			return nil
		},
	}
}

func (c *cli) activateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "activate LICENSE-KEY",
		Short: "Activate a license key on this device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			result, err := a.Validator.Activate(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("activation failed: %w", err)
			}
			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "License activated")
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func (c *cli) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the activated license, falling back to the offline cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			result, err := a.Validator.ValidateCurrent(cmd.Context())
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			status := a.Grace.GetStatus()

			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"result": result,
					"grace":  status,
				})
			}
			out := cmd.OutOrStdout()
			if result.IsOfflineValidation {
				fmt.Fprintln(out, "License valid (offline)")
			} else {
				fmt.Fprintln(out, "License valid")
			}
			printResult(out, result)
			if status.IsOffline {
				printGrace(out, status)
			}
			return nil
		},
	}
}

func (c *cli) deactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Release this device's activation and forget the license",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.load(cmd)
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context(), env)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if err := a.Validator.Deactivate(cmd.Context()); err != nil {
				return fmt.Errorf("deactivation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "License deactivated")
			return nil
		},
	}
}

func (c *cli) graceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "grace",
		Short: "Show the offline grace period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.load(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := c.openStore(env)
			if err != nil {
				return err
			}
			defer closeStore()

			manager := grace.NewManager(env.cfg.Grace, grace.WithStore(store), grace.WithLogger(env.logger))
			if err := manager.Start(cmd.Context()); err != nil {
				return err
			}
			defer manager.Stop()
			status := manager.GetStatus()

			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), status)
			}
			printGrace(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func (c *cli) tokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Work with license tokens",
	}

	var fingerprint string
	inspect := &cobra.Command{
		Use:   "inspect [TOKEN]",
		Short: "Decode a token, or the stored one, and verify it when a secret is configured",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.load(cmd)
			if err != nil {
				return err
			}

			raw := ""
			if len(args) == 1 {
				raw = strings.TrimSpace(args[0])
			} else if raw, err = c.storedToken(cmd, env); err != nil {
				return err
			}

			header, payload, err := token.Decode(raw)
			if err != nil {
				return fmt.Errorf("failed to decode token: %w", err)
			}

			verification := "skipped (no token secret configured)"
			if secret := env.cfg.License.TokenSecret; secret != "" {
				if fingerprint == "" {
					if fingerprint, err = c.fingerprintsFor(env).Fingerprint(cmd.Context()); err != nil {
						return fmt.Errorf("failed to compute fingerprint: %w", err)
					}
				}
				codec, err := token.NewCodec(token.Config{
					Secret:    []byte(secret),
					Algorithm: token.Algorithm(env.cfg.License.TokenAlgorithm),
					Issuer:    env.cfg.License.TokenIssuer,
					Audience:  env.cfg.License.TokenAudience,
				})
				if err != nil {
					return err
				}
				verification = "valid"
				if _, err := codec.Validate(raw, fingerprint); err != nil {
					verification = "invalid: " + err.Error()
				}
			}

			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"header":       header,
					"payload":      payload,
					"verification": verification,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Algorithm:    %s\n", header.Alg)
			fmt.Fprintf(out, "Issuer:       %s\n", payload.Issuer)
			fmt.Fprintf(out, "Audience:     %s\n", payload.Audience)
			fmt.Fprintf(out, "License:      %s (%s)\n", payload.LicenseID, payload.LicenseType)
			fmt.Fprintf(out, "Features:     %s\n", strings.Join(payload.Features, ", "))
			fmt.Fprintf(out, "Issued:       %s\n", payload.IssuedAtTime().UTC().Format(timeLayout))
			fmt.Fprintf(out, "Expires:      %s\n", payload.ExpiresAtTime().UTC().Format(timeLayout))
			fmt.Fprintf(out, "Verification: %s\n", verification)
			return nil
		},
	}
	inspect.Flags().StringVar(&fingerprint, "fingerprint", "", "device fingerprint to verify against, defaults to this device")

	cmd.AddCommand(inspect)
	return cmd
}

func (c *cli) storedToken(cmd *cobra.Command, env *environment) (string, error) {
	store, closeStore, err := c.openStore(env)
	if err != nil {
		return "", err
	}
	defer closeStore()

	var tok string
	err = storage.GetJSON(cmd.Context(), store, storage.KeyToken, &tok)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && tok == "") {
		return "", errors.New("no token stored, pass one as an argument")
	}
	return tok, err
}

func printResult(out io.Writer, result *license.Result) {
	lic := result.License
	fmt.Fprintf(out, "Key:          %s\n", lic.Key)
	fmt.Fprintf(out, "Type:         %s\n", lic.Type)
	fmt.Fprintf(out, "Status:       %s\n", lic.Status)
	if lic.ExpiresAt != nil {
		fmt.Fprintf(out, "Expires:      %s (%d days)\n", lic.ExpiresAt.UTC().Format(timeLayout), result.RemainingDays)
	}
	fmt.Fprintf(out, "Activations:  %d/%d\n", lic.CurrentActivations, lic.MaxActivations)
	fmt.Fprintf(out, "Features:     %s\n", strings.Join(lic.Features, ", "))
	fmt.Fprintf(out, "Cached until: %s\n", result.OfflineValidUntil.UTC().Format(timeLayout))
}

func printGrace(out io.Writer, s grace.Status) {
	if !s.IsOffline {
		fmt.Fprintf(out, "Online, grace period of %d days available\n", s.GracePeriodDays)
		return
	}
	fmt.Fprintf(out, "Offline:      %t\n", s.IsOffline)
	fmt.Fprintf(out, "Valid:        %t\n", s.IsValid)
	fmt.Fprintf(out, "Warning:      %s\n", s.WarningLevel)
	if s.GraceEndsAt != nil {
		fmt.Fprintf(out, "Ends:         %s\n", s.GraceEndsAt.UTC().Format(timeLayout))
	}
	remaining := time.Duration(s.RemainingHours) * time.Hour
	fmt.Fprintf(out, "Remaining:    %d days (%s)\n", s.RemainingDays, remaining)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
