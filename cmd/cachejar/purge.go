package main

import (
	"fmt"
	"net/http"

	"github.com/always-cache/cachejar"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <url>...",
	Short: "Remove stored responses of URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  purgeCommand,
}

func purgeCommand(cmd *cobra.Command, args []string) error {
	transport, closeAll, err := openTransport(nil)
	if err != nil {
		return err
	}
	defer closeAll()

	for _, url := range args {
		req, err := http.NewRequestWithContext(cmd.Context(), cachejar.MethodPurge, url, nil)
		if err != nil {
			return err
		}
		res, err := transport.RoundTrip(req)
		if err != nil {
			return err
		}
		res.Body.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", url)
	}
	return nil
}
