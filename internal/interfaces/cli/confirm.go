package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/dosewise/rxlens/pkg/types/rx"
)

type confirmOptions struct {
	imageHash   string
	medsFile    string
	patientName string
	patientAge  int
	lifestyle   string
}

func newConfirmCommand(root *RootOptions) *cobra.Command {
	opts := &confirmOptions{}

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a reviewed medication list and print the patient cards",
		Long: `Confirm sends the user-reviewed medication list back to the server.
The medications file is a JSON array of medication objects, typically the
"extracted_data" entries from a scan, after any manual edits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirm(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.imageHash, "hash", "", "image hash from the scan (required)")
	f.StringVar(&opts.medsFile, "file", "", "JSON file with the medication list (required)")
	f.StringVar(&opts.patientName, "name", "", "patient name")
	f.IntVar(&opts.patientAge, "age", 0, "patient age")
	f.StringVar(&opts.lifestyle, "lifestyle", "", "lifestyle notes")
	_ = cmd.MarkFlagRequired("hash")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runConfirm(cmd *cobra.Command, root *RootOptions, opts *confirmOptions) error {
	raw, err := os.ReadFile(opts.medsFile)
	if err != nil {
		return fmt.Errorf("read medications file: %w", err)
	}
	var meds []rx.MedicationCandidate
	if err := json.Unmarshal(raw, &meds); err != nil {
		return fmt.Errorf("parse medications file: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"image_hash":  opts.imageHash,
		"medications": meds,
		"patient": rx.PatientContext{
			Name:      opts.patientName,
			Age:       opts.patientAge,
			Lifestyle: opts.lifestyle,
		},
	})
	if err != nil {
		return err
	}

	client := newAPIClient(root)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
		client.base+"/api/v1/prescriptions/confirm", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		ImageHash   string                   `json:"image_hash"`
		Medications []rx.ConfirmedMedication `json:"medications"`
	}
	if err := client.do(req, &resp); err != nil {
		return err
	}

	if root.OutputFormat == "json" {
		return printJSON(resp)
	}
	for _, med := range resp.Medications {
		card := med.PatientCard
		cmd.Printf("[%s] %s\n", med.SafetyFlag, card.Headline)
		cmd.Printf("    %s\n", card.PlainInstruction)
		if card.WarningLabel != "" {
			cmd.Printf("    ⚠ %s\n", card.WarningLabel)
		}
	}
	return nil
}
