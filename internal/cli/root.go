package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/polkiloo/shiftclose/internal/adapter/closingapi"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/logger"
	"github.com/polkiloo/shiftclose/internal/session"
)

type runtime struct {
	v      *viper.Viper
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the closectl command tree. Flags may also be set
// through CLOSECTL_* environment variables or a config file.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CLOSECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rt := &runtime{v: v, in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "closectl",
		Short: "Shift and day closing wizard",
		Long: `closectl drives a shift or day closing against a shiftclose server.
Edits are buffered in a draft session and saved after a short quiet window;
the server keeps the draft, so an interrupted wizard resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if file := v.GetString("config"); file != "" {
				v.SetConfigFile(file)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			return nil
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml)")
	flags.String("server", "http://localhost:8080", "shiftclose server URL")
	flags.String("token", "", "session token")
	flags.String("scope", "", "identifier of the shift or day being closed")
	flags.String("kind", string(model.DraftKindShiftClose), "SHIFT_CLOSE or DAY_CLOSE")
	flags.Duration("autosave-delay", session.DefaultAutosaveDelay, "quiet window before buffered edits are saved")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	for _, name := range []string{"config", "server", "token", "scope", "kind", "autosave-delay", "json", "log-level"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		rt.openCmd(),
		rt.statusCmd(),
		rt.editCmd(),
		rt.reportsCmd(),
		rt.stepCmd(),
		rt.lotteryCmd(),
		rt.finalizeCmd(),
		rt.discardCmd(),
		rt.tokenCmd(),
	)
	return root
}

func (rt *runtime) logger() *slog.Logger {
	return logger.NewText(rt.errOut, logger.ParseLevel(rt.v.GetString("log-level"))).
		With(slog.String("component", "closectl"))
}

func (rt *runtime) client() (*closingapi.Client, error) {
	token := rt.v.GetString("token")
	if token == "" {
		return nil, errors.New("a session token is required (--token or CLOSECTL_TOKEN)")
	}
	return closingapi.NewClient(rt.v.GetString("server"), token, rt.logger())
}

func (rt *runtime) scope() (string, model.DraftKind, error) {
	scope := strings.TrimSpace(rt.v.GetString("scope"))
	if scope == "" {
		return "", "", errors.New("--scope is required")
	}
	kind := model.DraftKind(strings.ToUpper(rt.v.GetString("kind")))
	if !kind.Valid() {
		return "", "", fmt.Errorf("unknown kind %q", rt.v.GetString("kind"))
	}
	return scope, kind, nil
}

func (rt *runtime) openSession(ctx context.Context, client *closingapi.Client) (*session.Session, error) {
	scope, kind, err := rt.scope()
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, client, scope, kind, rt.sessionOptions())
}

func (rt *runtime) sessionOptions() session.Options {
	return session.Options{
		AutosaveDelay: rt.v.GetDuration("autosave-delay"),
		Logger:        rt.logger(),
		OnError: func(err error) {
			fmt.Fprintf(rt.errOut, "autosave failed: %v\n", err)
		},
	}
}

// withSession opens the scope's draft session and closes it after fn.
func (rt *runtime) withSession(ctx context.Context, fn func(*closingapi.Client, *session.Session) error) error {
	client, err := rt.client()
	if err != nil {
		return err
	}
	sess, err := rt.openSession(ctx, client)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(client, sess)
}

// save flushes the session. On a repeated version conflict the server state
// is shown and policy decides between failing, overwriting and reloading.
func (rt *runtime) save(ctx context.Context, sess *session.Session, policy string) (*model.Draft, error) {
	saved, err := sess.Save(ctx)
	var conflict *session.ConflictError
	if !errors.As(err, &conflict) {
		return saved, err
	}

	fmt.Fprintf(rt.errOut, "draft was changed by someone else (server version %d)\n", conflict.Conflict.CurrentVersion)
	if printErr := rt.printDraft(conflict.Current); printErr != nil {
		return nil, printErr
	}
	switch policy {
	case "overwrite":
		return sess.ResolveConflict(ctx, conflict.Current, true)
	case "reload":
		return sess.ResolveConflict(ctx, conflict.Current, false)
	}
	return nil, fmt.Errorf("%w; rerun with --on-conflict=overwrite or --on-conflict=reload", err)
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
