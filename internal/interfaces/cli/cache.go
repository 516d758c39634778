package cli

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newCacheCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Result cache operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate <image-hash>",
		Short: "Drop the cached result for one image hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(root)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete,
				client.base+"/api/v1/prescriptions/"+args[0]+"/cache", nil)
			if err != nil {
				return err
			}
			if err := client.do(req, nil); err != nil {
				return err
			}
			cmd.Printf("cache entry %s invalidated\n", args[0])
			return nil
		},
	})
	return cmd
}
