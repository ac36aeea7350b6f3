package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldscribe/fieldscribe/internal/types"
	"github.com/fieldscribe/fieldscribe/internal/ui"
)

var registerCmd = &cobra.Command{
	Use:     "register",
	GroupID: "setup",
	Short:   "Create an account on the server",
	Long: `Create an account and sign in.

Missing fields are asked for interactively. The credentials are cached so
expired sessions can be renewed without asking again.`,
	Run: func(cmd *cobra.Command, args []string) {
		var req types.RegistrationRequest
		req.Name, _ = cmd.Flags().GetString("name")
		req.Mobile, _ = cmd.Flags().GetString("mobile")
		req.Operator, _ = cmd.Flags().GetString("operator")
		req.Password, _ = cmd.Flags().GetString("password")

		complete := ui.ValidateName(req.Name) == nil &&
			ui.ValidateMobile(req.Mobile) == nil &&
			ui.ValidatePassword(req.Password) == nil &&
			req.Operator != ""
		if !complete {
			if !ui.IsTerminal(os.Stdin) {
				fatalf("--name, --mobile, --operator and --password are required without a terminal")
			}
			var err error
			req, err = ui.RegistrationForm(os.Stdin, os.Stdout, req)
			if err != nil {
				fatalf("%v", err)
			}
		}

		a := openApp()
		defer a.Close()
		ctx, cancel := signalContext()
		defer cancel()

		user, err := a.Engine().Register(ctx, req)
		if err != nil {
			if types.KindOf(err) == types.KindDuplicateUser {
				fatalf("an account for %s already exists; use 'fieldscribe login'", req.Mobile)
			}
			checkErr("registration failed", err)
		}
		fmt.Println(a.theme.Successf("Registered and signed in as %s", user.Mobile))
	},
}

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "setup",
	Short:   "Sign in with cached or given credentials",
	Long: `Sign in and cache a fresh token pair.

With --mobile and --password the credentials replace the cached ones first.`,
	Run: func(cmd *cobra.Command, args []string) {
		mobile, _ := cmd.Flags().GetString("mobile")
		password, _ := cmd.Flags().GetString("password")

		a := openApp()
		defer a.Close()

		if mobile != "" || password != "" {
			if err := ui.ValidateMobile(mobile); err != nil {
				fatalf("%v", err)
			}
			if password == "" {
				fatalf("--password is required with --mobile")
			}
			if err := a.prefs.SaveUserInfo(types.UserInfo{Mobile: mobile, Password: password}); err != nil {
				fatalf("failed to cache credentials: %v", err)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()
		checkErr("login failed", a.Engine().Login(ctx))

		user, _ := a.prefs.UserInfo()
		fmt.Println(a.theme.Successf("Signed in as %s", user.Mobile))
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "setup",
	Short:   "Forget the cached token pair",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		if err := a.prefs.ClearTokens(); err != nil {
			fatalf("%v", err)
		}
		fmt.Println(a.theme.Successf("Signed out"))
	},
}

func init() {
	registerCmd.Flags().String("name", "", "Your name")
	registerCmd.Flags().String("mobile", "", "Mobile number")
	registerCmd.Flags().String("operator", "", "Mobile operator")
	registerCmd.Flags().String("password", "", "Password")

	loginCmd.Flags().String("mobile", "", "Mobile number")
	loginCmd.Flags().String("password", "", "Password")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
