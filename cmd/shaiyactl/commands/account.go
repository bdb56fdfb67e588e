package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/iniwex5/shaiya-go/pkg/accountdb"
	"github.com/iniwex5/shaiya-go/pkg/server"
)

func accountCmd() *cobra.Command {
	var dbPath string
	open := func() (*accountdb.DB, error) {
		if dbPath == "" {
			dbPath = cfg.Server.AccountsDB
		}
		if dbPath == "" {
			return nil, errors.New("no account database: set --db or Server.AccountsDB")
		}
		return accountdb.Open(dbPath)
	}

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the account database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "account database (default Server.AccountsDB)")

	var (
		password string
		acct     server.Account
		update   bool
	)
	put := &cobra.Command{
		Use:   "put <username>",
		Short: "Create or update an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			h, err := server.HashPassword(password, bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			return db.Put(args[0], h, acct, update)
		},
	}
	put.Flags().StringVarP(&password, "password", "p", "", "account password")
	put.Flags().Uint32Var(&acct.UserID, "id", 0, "user id")
	put.Flags().Uint8Var(&acct.Privilege, "privilege", 0, "privilege level")
	put.Flags().BoolVar(&acct.Disabled, "disabled", false, "refuse logins")
	put.Flags().BoolVar(&update, "update", false, "replace an existing account")
	_ = put.MarkFlagRequired("password")

	remove := &cobra.Command{
		Use:   "remove <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Remove(args[0])
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			names, err := db.Usernames()
			if err != nil {
				return err
			}
			for _, n := range names {
				a, err := db.Get(n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tid=%d privilege=%d disabled=%t\n", n, a.UserID, a.Privilege, a.Disabled)
			}
			return nil
		},
	}

	cmd.AddCommand(put, remove, list)
	return cmd
}
