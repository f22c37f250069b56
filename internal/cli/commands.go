package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/tansive/sitestore/internal/common/apperrors"
	"sigs.k8s.io/yaml"
)

const cliVersion = "v0.1.0"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewRootCmd creates the sitectl command tree. Options are applied before any subcommand runs.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{}
	for _, opt := range opts {
		opt(a)
	}

	cmd := &cobra.Command{
		Use:   "sitectl",
		Short: "sitectl manages the databases of a multi-site CMS",
		Long: `sitectl is a command line interface to the sitestore data layer.
It resolves site databases, bootstraps new sites with their baseline content and
inspects the documents stored for any entity.`,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
		SilenceErrors:      true,
		SilenceUsage:       true,
	}
	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "", "", "Path to a TOML configuration file (default $SITESTORE_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&a.jsonOutput, "json", "j", false, "Output in JSON format")

	cmd.AddCommand(
		newVersionCmd(a),
		newEntitiesCmd(a),
		newDbNameCmd(a),
		newCollectionsCmd(a),
		newBootstrapCmd(a),
		newRegisterCmd(a),
		newGetCmd(a),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute(ctx context.Context) {
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if jsonOut, _ := cmd.PersistentFlags().GetBool("json"); jsonOut {
		reportError(os.Stdout, true, err)
	} else {
		reportError(os.Stderr, false, err)
	}
	os.Exit(1)
}

// reportError writes err with its kind when jsonOut is set, as plain text otherwise.
func reportError(w io.Writer, jsonOut bool, err error) {
	if jsonOut {
		printJSON(w, map[string]string{
			"error": errorText(err),
			"kind":  apperrors.KindOf(err).String(),
		})
		return
	}
	fmt.Fprintf(w, "Error: %v\n", errorText(err))
}

// errorText includes the underlying causes of application errors.
func errorText(err error) string {
	if appErr, ok := err.(apperrors.Error); ok {
		return appErr.SetExpandError(true).ErrorAll()
	}
	return err.Error()
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sitectl",
		Run: func(cmd *cobra.Command, args []string) {
			if a.jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{
					"version": cliVersion,
				})
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "sitectl "+cliVersion)
			}
		},
	}
}

// printJSON prints the given value as indented JSON.
func printJSON(w io.Writer, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}

func printYAML(w io.Writer, data any) error {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = w.Write(yamlData)
	return err
}

// printOutput renders data in the requested format. An empty format falls back to the
// --json flag and then to YAML.
func (a *app) printOutput(w io.Writer, format string, data any) error {
	if format == "" && a.jsonOutput {
		format = "json"
	}
	switch format {
	case "json":
		return printJSON(w, data)
	case "", "yaml":
		return printYAML(w, data)
	}
	return fmt.Errorf("unsupported output format %q, use yaml or json", format)
}
