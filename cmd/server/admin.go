package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/and161185/fieldsync/internal/config"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// EnvNewUserPassword supplies the password of `user add` without putting it in shell history.
const EnvNewUserPassword = "FIELDSYNC_NEW_USER_PASSWORD"

// withApp loads config, wires the app quietly and runs fn.
func withApp(ctx context.Context, opts *rootOptions, fn func(a *app) error) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// resolveAdmin maps --as to an administrator id recorded as approver.
func resolveAdmin(ctx context.Context, a *app, username string) (*model.User, error) {
	if username == "" {
		return nil, errors.New("--as <admin username> is required")
	}
	u, err := a.store.Users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", username, err)
	}
	if !u.Role.IsAdmin() {
		return nil, fmt.Errorf("%q is not an administrator", username)
	}
	return u, nil
}

func printDevices(w io.Writer, ds []model.PendingDevice) error {
	if len(ds) == 0 {
		_, err := fmt.Fprintln(w, "No pending devices")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE ID\tUSER\tPLATFORM\tMODEL\tAPP\tAUTH CODE\tCREATED AT")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.DeviceID, d.Username, d.Platform, d.Model, d.AppVersion, d.AuthCode,
			d.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return tw.Flush()
}

func newDeviceCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage device approvals",
	}
	var as string

	list := &cobra.Command{
		Use:   "list",
		Short: "List devices waiting for approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				ds, err := a.services.Devices.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				return printDevices(cmd.OutOrStdout(), ds)
			})
		},
	}

	approve := &cobra.Command{
		Use:   "approve <deviceId>",
		Short: "Approve a pending device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				admin, err := resolveAdmin(cmd.Context(), a, as)
				if err != nil {
					return err
				}
				d, err := a.services.Devices.Approve(cmd.Context(), args[0], admin.ID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Device %s is %s\n", d.DeviceID, d.State())
				return err
			})
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject <deviceId>",
		Short: "Reject a device and revoke its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return errors.New("--reason is required")
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				admin, err := resolveAdmin(cmd.Context(), a, as)
				if err != nil {
					return err
				}
				d, err := a.services.Devices.Reject(cmd.Context(), args[0], admin.ID, reason)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Device %s is %s\n", d.DeviceID, d.State())
				return err
			})
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "rejection reason shown to administrators")

	cmd.PersistentFlags().StringVar(&as, "as", "", "administrator username recorded as approver")
	cmd.AddCommand(list, approve, reject)
	return cmd
}

func newUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Bootstrap user accounts",
	}
	var username, password, name, email, role string

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(EnvNewUserPassword)
			}
			if password == "" {
				return fmt.Errorf("password required: set %s or pass --password", EnvNewUserPassword)
			}
			r, ok := model.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				u, err := a.services.Auth.CreateUser(cmd.Context(), username, password, name, email, r)
				if errors.Is(err, errs.ErrAlreadyExists) {
					return fmt.Errorf("username %q is taken", username)
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) id=%s\n", u.Username, u.Role, u.ID)
				return err
			})
		},
	}
	add.Flags().StringVar(&username, "username", "", "login name")
	add.Flags().StringVar(&password, "password", "", "password (prefer "+EnvNewUserPassword+")")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&role, "role", string(model.RoleFieldAgent), "SUPER_ADMIN, ADMIN, BACKEND_USER or FIELD_AGENT")
	_ = add.MarkFlagRequired("username")

	cmd.AddCommand(add)
	return cmd
}
