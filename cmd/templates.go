package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dococr/internal/annotation"
	"dococr/internal/logger"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [template]",
	Short: "List document templates or show the annotation schema of one",
	Long: `Without arguments, list the document templates and how many fields each
extracts. With a template name, print the strict JSON schema envelope that
is sent as document_annotation_format for that template.

The required list follows OCR_REQUIRED_POLICY unless --required is given:
"selected" marks only fields flagged as required, "all" marks every field.`,
	Example: `  # List templates
  dococr templates

  # Show the invoice schema with every field required
  dococr templates invoice --required all

  # Show the default bbox annotation schema
  dococr templates --bbox

  # List the quick field presets usable in --fields files
  dococr templates --quick-fields`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)

	templatesCmd.Flags().String("required", "", "Required policy: selected or all (default: OCR_REQUIRED_POLICY)")
	templatesCmd.Flags().Bool("bbox", false, "Show the default bbox annotation schema")
	templatesCmd.Flags().Bool("quick-fields", false, "List quick field presets")
}

func runTemplates(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("templates")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	policy := cfg.RequiredPolicy
	if value, _ := cmd.Flags().GetString("required"); value != "" {
		if policy, err = annotation.ParseRequiredPolicy(value); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	showBBox, _ := cmd.Flags().GetBool("bbox")
	showQuick, _ := cmd.Flags().GetBool("quick-fields")

	switch {
	case showQuick:
		return printFields(out, annotation.QuickFields())
	case showBBox:
		return printEnvelope(out, annotation.DefaultBBoxSchema(), annotation.BBoxSchemaName, policy)
	case len(args) == 0:
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TEMPLATE\tFIELDS")
		for _, name := range annotation.TemplateNames() {
			fields, _ := annotation.Template(name)
			fmt.Fprintf(w, "%s\t%d\n", name, len(fields))
		}
		return w.Flush()
	}

	name := args[0]
	fields, ok := annotation.Template(name)
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	if name == annotation.CustomTemplate {
		fields = annotation.DefaultCustomFields()
	}

	log.Debug().
		Str("template", name).
		Str("policy", string(policy)).
		Msg("Building template schema")

	return printEnvelope(out, fields, annotation.DocumentSchemaName, policy)
}

func printEnvelope(out io.Writer, fields annotation.FieldSchema, name string, policy annotation.RequiredPolicy) error {
	envelope, err := annotation.BuildJSONSchema(fields, name, policy)
	if err != nil {
		return err
	}
	return writeJSON(out, envelope)
}

func printFields(out io.Writer, fields annotation.FieldSchema) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tTYPE\tREQUIRED\tDESCRIPTION")
	for _, name := range fields.Names() {
		spec := fields[name]
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", name, spec.Type, spec.Required, spec.Description)
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	data = append(data, '\n')
	_, err = out.Write(data)
	return err
}
