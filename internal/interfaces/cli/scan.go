package cli

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dosewise/rxlens/pkg/types/rx"
)

type scanOptions struct {
	patientName  string
	patientAge   int
	language     string
	lifestyle    string
	concerns     []string
	activeMeds   []string
	forceRefresh bool
}

func newScanCommand(root *RootOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <image-file>",
		Short: "Upload a prescription photo and print the extracted medications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.patientName, "name", "", "patient name")
	f.IntVar(&opts.patientAge, "age", 0, "patient age")
	f.StringVar(&opts.language, "language", "", "preferred language")
	f.StringVar(&opts.lifestyle, "lifestyle", "", "lifestyle notes")
	f.StringSliceVar(&opts.concerns, "concern", nil, "patient concern (repeatable)")
	f.StringSliceVar(&opts.activeMeds, "active-med", nil, "medication the patient already takes (repeatable)")
	f.BoolVar(&opts.forceRefresh, "force-refresh", false, "bypass the result cache")
	return cmd
}

func runScan(cmd *cobra.Command, root *RootOptions, opts *scanOptions, path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("photo", path)
	if err != nil {
		return err
	}
	if _, err := fw.Write(image); err != nil {
		return err
	}
	fields := map[string]string{
		"patient_name":       opts.patientName,
		"patient_age":        strconv.Itoa(opts.patientAge),
		"language":           opts.language,
		"lifestyle":          opts.lifestyle,
		"concerns":           strings.Join(opts.concerns, ","),
		"active_medications": strings.Join(opts.activeMeds, ","),
		"force_refresh":      strconv.FormatBool(opts.forceRefresh),
	}
	for k, v := range fields {
		if v != "" && v != "0" {
			if err := w.WriteField(k, v); err != nil {
				return err
			}
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	client := newAPIClient(root)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
		client.base+"/api/v1/prescriptions/analyze", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result rx.AnalysisResult
	if err := client.do(req, &result); err != nil {
		return err
	}

	if root.OutputFormat == "json" {
		return printJSON(result)
	}
	printAnalysis(cmd, &result)
	return nil
}

func printAnalysis(cmd *cobra.Command, result *rx.AnalysisResult) {
	cmd.Printf("image hash: %s", result.ImageHash)
	if result.FromCache {
		cmd.Printf(" (cached)")
	}
	cmd.Println()

	for _, med := range result.Medications {
		cmd.Printf("  [%s] %s %s  %s (%s)\n",
			med.SafetyFlag, med.ExtractedData.DrugName, med.ExtractedData.Dosage,
			med.ExtractedData.DoseTiming, med.ExtractedData.DosingSource)
		if med.Validation.WasCorrected {
			if med.ExtractedData.DrugName == med.Validation.OriginalName {
				cmd.Printf("        matched %q\n", med.Validation.CorrectedName)
			} else {
				cmd.Printf("        corrected from %q\n", med.Validation.OriginalName)
			}
		}
		if med.SafetyFlag != rx.FlagGreen {
			cmd.Printf("        %s\n", med.SafetyReasoning)
		}
	}
	for _, fail := range result.FailedExtractions {
		cmd.Printf("  [??] %s", fail.Reason)
		if fail.OriginalName != "" {
			cmd.Printf(": %q", fail.OriginalName)
		}
		if len(fail.Suggestions) > 0 {
			cmd.Printf(" (did you mean: %s)", strings.Join(fail.Suggestions, ", "))
		}
		cmd.Println()
	}
}
