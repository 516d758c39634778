package cli

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dosewise/rxlens/pkg/types/rx"
)

func newRecordsCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "records <image-hash>",
		Short: "List the confirmed medication records for a prescription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(root)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				client.base+"/api/v1/prescriptions/"+args[0]+"/records", nil)
			if err != nil {
				return err
			}

			var resp struct {
				Records []struct {
					ID          string       `json:"id"`
					DrugName    string       `json:"drug_name"`
					Dosage      string       `json:"dosage"`
					DoseTiming  string       `json:"dose_timing"`
					SafetyFlag  string       `json:"safety_flag"`
					Card        rx.NudgeCard `json:"patient_facing_card"`
					ConfirmedAt time.Time    `json:"confirmed_at"`
				} `json:"records"`
			}
			if err := client.do(req, &resp); err != nil {
				return err
			}

			if root.OutputFormat == "json" {
				return printJSON(resp)
			}
			for _, rec := range resp.Records {
				cmd.Printf("[%s] %s %s  %s  confirmed %s\n",
					rec.SafetyFlag, rec.DrugName, rec.Dosage, rec.DoseTiming,
					rec.ConfirmedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}
