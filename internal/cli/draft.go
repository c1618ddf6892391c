package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/polkiloo/shiftclose/internal/adapter/closingapi"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/session"
)

func (rt *runtime) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Resume the active draft of the scope or start a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withSession(cmd.Context(), func(_ *closingapi.Client, sess *session.Session) error {
				d := sess.Draft()
				return rt.printDraft(&d)
			})
		},
	}
}

func (rt *runtime) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active draft of the scope without creating one",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, _, err := rt.scope()
			if err != nil {
				return err
			}
			client, err := rt.client()
			if err != nil {
				return err
			}
			d, err := client.GetActive(cmd.Context(), scope)
			if err != nil {
				return err
			}
			if d == nil {
				fmt.Fprintf(rt.out, "no active draft for %s\n", scope)
				return nil
			}
			return rt.printDraft(d)
		},
	}
}

func (rt *runtime) editCmd() *cobra.Command {
	var onConflict string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Apply key=value edits read from stdin",
		Long: `Reads one key=value assignment per line from stdin. Edits are applied
locally at once and written in batches after the autosave delay; the rest is
flushed when input ends.

Keys: closing_cash, reports.fuel_sales, reports.merchandise_sales,
reports.cash_sales, reports.card_sales, lottery.entry_method,
lottery.authorized_by, lottery.tickets_sold, lottery.sales_total`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withSession(cmd.Context(), func(_ *closingapi.Client, sess *session.Session) error {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				n := 0
				for scanner.Scan() {
					n++
					line := strings.TrimSpace(scanner.Text())
					if line == "" || strings.HasPrefix(line, "#") {
						continue
					}
					partial, err := parseAssignment(sess.Payload(), line)
					if err != nil {
						return fmt.Errorf("line %d: %w", n, err)
					}
					if err := sess.Edit(partial); err != nil {
						return err
					}
				}
				if err := scanner.Err(); err != nil {
					return err
				}
				saved, err := rt.save(cmd.Context(), sess, onConflict)
				if err != nil {
					return err
				}
				return rt.printDraft(saved)
			})
		},
	}
	cmd.Flags().StringVar(&onConflict, "on-conflict", "fail", "after a repeated version conflict: fail, overwrite or reload")
	return cmd
}

// parseAssignment turns one key=value line into a partial payload. Keys of a
// nested step start from the current local step since a step is replaced whole.
func parseAssignment(current model.DraftPayload, line string) (model.DraftPayload, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return model.DraftPayload{}, fmt.Errorf("expected key=value, got %q", line)
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	section, field, nested := strings.Cut(key, ".")
	if !nested {
		if key != "closing_cash" {
			return model.DraftPayload{}, fmt.Errorf("unknown key %q", key)
		}
		amount, err := parseAmount(value)
		if err != nil {
			return model.DraftPayload{}, err
		}
		return model.DraftPayload{ClosingCash: &amount}, nil
	}

	switch section {
	case "reports":
		step := model.ReportsStep{}
		if current.Reports != nil {
			step = *current.Reports
		}
		amount, err := parseAmount(value)
		if err != nil {
			return model.DraftPayload{}, err
		}
		switch field {
		case "fuel_sales":
			step.FuelSales = amount
		case "merchandise_sales":
			step.MerchandiseSales = amount
		case "cash_sales":
			step.CashSales = amount
		case "card_sales":
			step.CardSales = amount
		default:
			return model.DraftPayload{}, fmt.Errorf("unknown key %q", key)
		}
		return model.DraftPayload{Reports: &step}, nil

	case "lottery":
		step := model.LotteryStep{EntryMethod: model.EntryMethodScan}
		if current.Lottery != nil {
			step = *current.Lottery
		}
		switch field {
		case "entry_method":
			step.EntryMethod = model.EntryMethod(strings.ToUpper(value))
		case "authorized_by":
			step.AuthorizedBy = value
		case "tickets_sold":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return model.DraftPayload{}, fmt.Errorf("invalid ticket count %q", value)
			}
			step.TicketsSold = n
		case "sales_total":
			amount, err := parseAmount(value)
			if err != nil {
				return model.DraftPayload{}, err
			}
			step.SalesTotal = amount
		default:
			return model.DraftPayload{}, fmt.Errorf("unknown key %q", key)
		}
		return model.DraftPayload{Lottery: &step}, nil
	}
	return model.DraftPayload{}, fmt.Errorf("unknown key %q", key)
}

func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", value)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount %q must not be negative", value)
	}
	return amount, nil
}

func (rt *runtime) reportsCmd() *cobra.Command {
	var (
		fuel, merchandise, cash, card string
		onConflict                    string
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Record the POS report totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var step model.ReportsStep
			for _, f := range []struct {
				value string
				dst   *decimal.Decimal
			}{{fuel, &step.FuelSales}, {merchandise, &step.MerchandiseSales}, {cash, &step.CashSales}, {card, &step.CardSales}} {
				amount, err := parseAmount(f.value)
				if err != nil {
					return err
				}
				*f.dst = amount
			}

			return rt.withSession(cmd.Context(), func(_ *closingapi.Client, sess *session.Session) error {
				if err := sess.UpdateReports(step); err != nil {
					return err
				}
				saved, err := rt.save(cmd.Context(), sess, onConflict)
				if err != nil {
					return err
				}
				return rt.printDraft(saved)
			})
		},
	}
	cmd.Flags().StringVar(&fuel, "fuel", "0", "fuel sales")
	cmd.Flags().StringVar(&merchandise, "merchandise", "0", "merchandise sales")
	cmd.Flags().StringVar(&cash, "cash", "0", "cash sales")
	cmd.Flags().StringVar(&card, "card", "0", "card sales")
	cmd.Flags().StringVar(&onConflict, "on-conflict", "fail", "after a repeated version conflict: fail, overwrite or reload")
	return cmd
}

func (rt *runtime) stepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step LOTTERY|REPORTS|REVIEW|none",
		Short: "Record the wizard step reached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			marker := model.StepMarker(strings.ToUpper(args[0]))
			if strings.EqualFold(args[0], "none") {
				marker = model.StepMarkerNone
			}
			if !marker.Valid() {
				return fmt.Errorf("unknown step %q", args[0])
			}
			return rt.withSession(cmd.Context(), func(_ *closingapi.Client, sess *session.Session) error {
				d, err := sess.UpdateStepMarker(cmd.Context(), marker)
				if err != nil {
					return err
				}
				return rt.printDraft(d)
			})
		},
	}
}

func (rt *runtime) discardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Abandon the active draft of the scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, _, err := rt.scope()
			if err != nil {
				return err
			}
			client, err := rt.client()
			if err != nil {
				return err
			}
			active, err := client.GetActive(cmd.Context(), scope)
			if err != nil {
				return err
			}
			if active == nil {
				fmt.Fprintf(rt.out, "no active draft for %s\n", scope)
				return nil
			}
			return rt.discard(cmd.Context(), client)
		},
	}
}

func (rt *runtime) discard(ctx context.Context, client *closingapi.Client) error {
	sess, err := rt.openSession(ctx, client)
	if err != nil {
		return err
	}
	expired, err := sess.Discard(ctx)
	if err != nil {
		return err
	}
	return rt.printDraft(expired)
}
