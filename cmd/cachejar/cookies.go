package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/always-cache/cachejar/cookie"

	"github.com/spf13/cobra"
)

var (
	domainFlag         string
	includeExpiredFlag bool
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage the cookie file",
}

var cookiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cookies as Set-Cookie values",
	Args:  cobra.NoArgs,
	RunE:  cookiesListCommand,
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear [domain [path [name]]]",
	Short: "Remove stored cookies",
	Long: `Remove stored cookies. Without arguments the whole jar is cleared,
otherwise the cookies matching every non-empty argument are removed.`,
	Args: cobra.MaximumNArgs(3),
	RunE: cookiesClearCommand,
}

var cookiesImportCmd = &cobra.Command{
	Use:   "import <cookies.txt>",
	Short: "Import cookies from a Netscape cookies.txt file",
	Args:  cobra.ExactArgs(1),
	RunE:  cookiesImportCommand,
}

func init() {
	cookiesListCmd.Flags().StringVar(&domainFlag, "domain", "", "Only list cookies sent to this host")
	cookiesListCmd.Flags().BoolVar(&includeExpiredFlag, "expired", false, "Include expired cookies")

	cookiesCmd.AddCommand(cookiesListCmd)
	cookiesCmd.AddCommand(cookiesClearCmd)
	cookiesCmd.AddCommand(cookiesImportCmd)
}

func openJar() (*cookie.FileJar, error) {
	if fileConfig.Cookies.File == "" {
		return nil, errors.New("no cookie file configured")
	}
	return cookie.OpenOrCreateFileJar(fileConfig.Cookies.File, fileConfig.Cookies.CookieOptions()...)
}

func cookiesListCommand(cmd *cobra.Command, args []string) error {
	jar, err := openJar()
	if err != nil {
		return err
	}
	defer jar.Close()

	for _, c := range jar.All(cookie.Filter{Domain: domainFlag, IncludeExpired: includeExpiredFlag}) {
		fmt.Fprintln(cmd.OutOrStdout(), c.String())
	}
	return nil
}

func cookiesClearCommand(cmd *cobra.Command, args []string) error {
	jar, err := openJar()
	if err != nil {
		return err
	}
	defer jar.Close()

	var domain, path, name string
	switch len(args) {
	case 3:
		name = args[2]
		fallthrough
	case 2:
		path = args[1]
		fallthrough
	case 1:
		domain = args[0]
	}
	n, err := jar.Clear(domain, path, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cookies\n", n)
	return nil
}

func cookiesImportCommand(cmd *cobra.Command, args []string) error {
	jar, err := openJar()
	if err != nil {
		return err
	}
	defer jar.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := jar.ImportNetscape(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cookies\n", n)
	return nil
}
