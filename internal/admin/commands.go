// Package admin implements the patientvault administration commands.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/server/config"
	"github.com/dmitrijs2005/patientvault/internal/server/services"
	"github.com/spf13/cobra"
)

const dobLayout = "2006-01-02"

var ErrPasswordMismatch = errors.New("passwords do not match")

// NewRootCmd builds the admin command tree. Commands read prompts from in,
// write to out and reach the database through open.
func NewRootCmd(open Opener, in io.Reader, out io.Writer) *cobra.Command {
	var defaults config.Config
	defaults.LoadDefaults()

	var dsn string

	root := &cobra.Command{
		Use:           "patientvault-admin",
		Short:         "Patientvault administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVarP(&dsn, "dsn", "d", defaults.DatabaseDSN, "database DSN")

	withBackend := func(ctx context.Context, fn func(b *Backend) error) error {
		b, err := open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer b.Close()
		return fn(b)
	}

	root.AddCommand(migrateCmd(withBackend), createPatientCmd(withBackend))
	return root
}

type backendFunc func(ctx context.Context, fn func(b *Backend) error) error

func migrateCmd(with backendFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return with(cmd.Context(), func(b *Backend) error {
				if err := b.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
				return nil
			})
		},
	}
}

type createPatientFlags struct {
	userName string
	name     string
	dob      string
	contact  string
}

func createPatientCmd(with backendFunc) *cobra.Command {
	var f createPatientFlags

	cmd := &cobra.Command{
		Use:   "create-patient",
		Short: "Create a password-protected patient account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readNewPatient(cmd, f)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(in.Password)

			return with(cmd.Context(), func(b *Backend) error {
				p, err := b.Accounts.CreatePatientAccount(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("create patient: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created patient %s for user %s\n", p.ID, in.UserName)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&f.userName, "username", "u", "", "login name (prompted when empty)")
	cmd.Flags().StringVar(&f.name, "name", "", "patient display name")
	cmd.Flags().StringVar(&f.dob, "dob", "", "date of birth, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.contact, "contact", "", "contact number")
	return cmd
}

// readNewPatient collects the account fields, prompting for the username
// when the flag is empty and always for the password, twice.
func readNewPatient(cmd *cobra.Command, f createPatientFlags) (services.NewPatient, error) {
	out := cmd.OutOrStdout()
	in := services.NewPatient{UserName: f.userName, Name: f.name, ContactNumber: f.contact}

	if f.dob != "" {
		dob, err := time.Parse(dobLayout, f.dob)
		if err != nil {
			return in, fmt.Errorf("invalid --dob %q, want YYYY-MM-DD", f.dob)
		}
		in.DOB = &dob
	}

	if in.UserName == "" {
		reader := bufio.NewReader(cmd.InOrStdin())
		userName, err := GetSimpleText(reader, "Username", out)
		if err != nil {
			return in, fmt.Errorf("read username: %w", err)
		}
		in.UserName = userName
	}

	password, err := GetPassword("Enter password: ", out)
	if err != nil {
		return in, fmt.Errorf("read password: %w", err)
	}
	confirm, err := GetPassword("Repeat password: ", out)
	if err != nil {
		common.WipeByteArray(password)
		return in, fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(password, confirm) {
		common.WipeByteArray(password)
		return in, ErrPasswordMismatch
	}
	in.Password = password
	return in, nil
}
