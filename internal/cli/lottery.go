package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/polkiloo/shiftclose/internal/adapter/closingapi"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/session"
)

// lotteryFile is the scanned bin list handed to `lottery prepare`.
type lotteryFile struct {
	EntryMethod  string     `yaml:"entry_method"`
	AuthorizedBy string     `yaml:"authorized_by"`
	Lines        []fileLine `yaml:"lines"`
}

type fileLine struct {
	PackID         string `yaml:"pack_id"`
	StartingSerial string `yaml:"starting_serial"`
	EndingSerial   string `yaml:"ending_serial"`
	UnitPrice      string `yaml:"unit_price"`
	Outcome        string `yaml:"outcome"`
}

func decodeLotteryFile(r io.Reader) (lotteryFile, []model.PrepareLine, error) {
	var file lotteryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return lotteryFile{}, nil, fmt.Errorf("decode lottery file: %w", err)
	}
	if file.EntryMethod == "" {
		file.EntryMethod = string(model.EntryMethodScan)
	}
	file.EntryMethod = strings.ToUpper(file.EntryMethod)
	if len(file.Lines) == 0 {
		return lotteryFile{}, nil, errors.New("lottery file has no lines")
	}

	lines := make([]model.PrepareLine, 0, len(file.Lines))
	for i, item := range file.Lines {
		line := model.PrepareLine{
			PackID:         item.PackID,
			StartingSerial: item.StartingSerial,
			EndingSerial:   item.EndingSerial,
			Outcome:        model.PackOutcome(strings.ToUpper(item.Outcome)),
		}
		if item.UnitPrice != "" {
			price, err := decimal.NewFromString(item.UnitPrice)
			if err != nil {
				return lotteryFile{}, nil, fmt.Errorf("line %d: invalid unit_price %q", i+1, item.UnitPrice)
			}
			line.UnitPrice = &price
		}
		lines = append(lines, line)
	}
	return file, lines, nil
}

func (rt *runtime) lotteryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "lottery", Short: "Close the lottery bins of the day"}
	cmd.AddCommand(rt.lotteryPrepareCmd(), rt.lotteryShowCmd(), rt.lotteryCancelCmd())
	return cmd
}

func (rt *runtime) lotteryPrepareCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Validate and price scanned bins and hold them for the finalize",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			file, lines, err := decodeLotteryFile(in)
			if err != nil {
				return err
			}

			return rt.withSession(cmd.Context(), func(client *closingapi.Client, sess *session.Session) error {
				attempt, err := client.Prepare(cmd.Context(), lines)
				if err != nil {
					return err
				}
				dayID, expiresAt := attempt.DayID, attempt.ExpiresAt
				if err := sess.UpdateLottery(model.LotteryStep{
					EntryMethod:  model.EntryMethod(file.EntryMethod),
					AuthorizedBy: file.AuthorizedBy,
					PendingDayID: &dayID,
					ExpiresAt:    &expiresAt,
					TicketsSold:  attempt.TicketsSold,
					SalesTotal:   attempt.LotteryTotal,
				}); err != nil {
					return err
				}
				if _, err := sess.Save(cmd.Context()); err != nil {
					return fmt.Errorf("record lottery in draft: %w", err)
				}
				return rt.printAttempt(attempt)
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "-", "YAML file with the scanned lines, - for stdin")
	return cmd
}

// pendingDay resolves the lottery day from the flag or from the active draft.
func (rt *runtime) pendingDay(ctx context.Context, client *closingapi.Client, flagDay int64) (int64, *model.Draft, error) {
	scope, _, err := rt.scope()
	if err != nil {
		return 0, nil, err
	}
	active, err := client.GetActive(ctx, scope)
	if err != nil {
		return 0, nil, err
	}
	if flagDay > 0 {
		return flagDay, active, nil
	}
	if active == nil || active.Payload.Lottery == nil || active.Payload.Lottery.PendingDayID == nil {
		return 0, active, errors.New("no pending lottery day in the draft; pass --day")
	}
	return *active.Payload.Lottery.PendingDayID, active, nil
}

func (rt *runtime) lotteryShowCmd() *cobra.Command {
	var day int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the latest lottery closing attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.client()
			if err != nil {
				return err
			}
			dayID, _, err := rt.pendingDay(cmd.Context(), client, day)
			if err != nil {
				return err
			}
			attempt, err := client.Attempt(cmd.Context(), dayID)
			if err != nil {
				return err
			}
			return rt.printAttempt(attempt)
		},
	}
	cmd.Flags().Int64Var(&day, "day", 0, "lottery day id (defaults to the draft's pending day)")
	return cmd
}

func (rt *runtime) lotteryCancelCmd() *cobra.Command {
	var day int64
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Discard the prepared lottery close",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.client()
			if err != nil {
				return err
			}
			dayID, active, err := rt.pendingDay(cmd.Context(), client, day)
			if err != nil {
				return err
			}
			attempt, err := client.CancelLottery(cmd.Context(), dayID)
			if err != nil {
				return err
			}

			if active != nil && active.Payload.Lottery != nil && active.Payload.Lottery.PendingDayID != nil &&
				*active.Payload.Lottery.PendingDayID == dayID {
				sess, err := rt.openSession(cmd.Context(), client)
				if err != nil {
					return err
				}
				defer sess.Close()
				step := *active.Payload.Lottery
				step.PendingDayID = nil
				step.ExpiresAt = nil
				step.TicketsSold = 0
				step.SalesTotal = decimal.Zero
				if err := sess.UpdateLottery(step); err != nil {
					return err
				}
				if _, err := sess.Save(cmd.Context()); err != nil {
					return fmt.Errorf("clear pending lottery day: %w", err)
				}
			}
			return rt.printAttempt(attempt)
		},
	}
	cmd.Flags().Int64Var(&day, "day", 0, "lottery day id (defaults to the draft's pending day)")
	return cmd
}
