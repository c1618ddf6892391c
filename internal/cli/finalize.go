package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/finalize"
	pkgAuth "github.com/polkiloo/shiftclose/internal/pkg/auth"
	"github.com/polkiloo/shiftclose/internal/session"
)

func (rt *runtime) finalizeCmd() *cobra.Command {
	var cash string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Flush edits, commit the prepared lottery, settle and close the draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(cash)
			if err != nil {
				return err
			}
			scope, _, err := rt.scope()
			if err != nil {
				return err
			}
			client, err := rt.client()
			if err != nil {
				return err
			}

			// The newest draft of the scope is the one to close. A finalized
			// one answers a repeated run with its recorded settlement.
			draft, err := client.Latest(cmd.Context(), scope)
			if err != nil {
				return err
			}
			if draft == nil || draft.Status == model.DraftStatusExpired {
				return fmt.Errorf("no draft to finalize for %s; start one with 'closectl open'", scope)
			}
			sess := session.Resume(client, draft, rt.sessionOptions())
			defer sess.Close()

			orch := finalize.NewOrchestrator(client, client, rt.logger())
			res, err := orch.Finalize(cmd.Context(), sess, amount)
			if errors.Is(err, domainErrors.ErrExpired) {
				return fmt.Errorf("%w; scan the bins again with 'closectl lottery prepare'", err)
			}
			if err != nil {
				return err
			}
			return rt.printResult(res)
		},
	}
	cmd.Flags().StringVar(&cash, "cash", "", "counted closing cash")
	_ = cmd.MarkFlagRequired("cash")
	return cmd
}

func (rt *runtime) tokenCmd() *cobra.Command {
	var (
		secret, user, store, role string
		ttl                       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token signed with the server secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = rt.v.GetString("jwt-secret")
			}
			if secret == "" {
				return errors.New("--secret or CLOSECTL_JWT_SECRET is required")
			}
			r := model.Role(role)
			if r != model.RoleClerk && r != model.RoleManager {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := pkgAuth.NewJWTStrategy(secret, pkgAuth.Options{TTL: ttl}).
				IssueToken(model.Actor{UserID: user, StoreID: store, Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "JWT secret of the server")
	cmd.Flags().StringVar(&user, "user", "", "operator id")
	cmd.Flags().StringVar(&store, "store", "", "store id")
	cmd.Flags().StringVar(&role, "role", string(model.RoleClerk), "clerk or manager")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
