package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var (
	methodFlag  string
	headerFlags []string
	includeFlag bool
)

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Send a request through the cache and cookie jar",
	Long: `Send a request and print the response body.

Examples:
  cachejar get https://example.com/
  cachejar get -i -H "Accept: application/json" https://example.com/api
  cachejar get -X HEAD https://example.com/`,
	Args: cobra.ExactArgs(1),
	RunE: getCommand,
}

func init() {
	getCmd.Flags().StringVarP(&methodFlag, "request", "X", http.MethodGet, "Request method")
	getCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Request header, \"Name: value\"")
	getCmd.Flags().BoolVarP(&includeFlag, "include", "i", false, "Print the response status and headers")
}

func getCommand(cmd *cobra.Command, args []string) error {
	transport, closeAll, err := openTransport(nil)
	if err != nil {
		return err
	}
	defer closeAll()

	req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(methodFlag), args[0], nil)
	if err != nil {
		return err
	}
	for _, h := range headerFlags {
		name, value, found := strings.Cut(h, ":")
		if !found {
			return fmt.Errorf("malformed header %q", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	res, err := transport.Client().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	out := cmd.OutOrStdout()
	if includeFlag {
		fmt.Fprintf(out, "%s %s\n", res.Proto, res.Status)
		res.Header.Write(out)
		fmt.Fprintln(out)
	}
	_, err = io.Copy(out, res.Body)
	return err
}
