package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/finalize"
	"github.com/polkiloo/shiftclose/internal/server/http/dto"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (rt *runtime) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(rt.out)
	tw.SetStyle(table.StyleLight)
	return tw
}

func (rt *runtime) printDraft(d *model.Draft) error {
	if rt.v.GetBool("json") {
		return rt.printJSON(dto.NewDraftResponse(d))
	}

	tw := rt.newTable()
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"Draft", d.ID},
		{"Scope", d.ScopeID},
		{"Kind", d.Kind},
		{"Status", d.Status},
		{"Step", d.StepMarker},
		{"Version", d.Version},
	})
	if d.SettlementID != "" {
		tw.AppendRow(table.Row{"Settlement", d.SettlementID})
	}

	p := d.Payload
	if p.ClosingCash != nil {
		tw.AppendRow(table.Row{"Closing cash", money(*p.ClosingCash)})
	}
	if r := p.Reports; r != nil {
		tw.AppendSeparator()
		tw.AppendRows([]table.Row{
			{"Fuel sales", money(r.FuelSales)},
			{"Merchandise sales", money(r.MerchandiseSales)},
			{"Cash sales", money(r.CashSales)},
			{"Card sales", money(r.CardSales)},
		})
	}
	if l := p.Lottery; l != nil {
		tw.AppendSeparator()
		tw.AppendRows([]table.Row{
			{"Lottery entry", l.EntryMethod},
			{"Tickets sold", l.TicketsSold},
			{"Lottery sales", money(l.SalesTotal)},
		})
		if l.AuthorizedBy != "" {
			tw.AppendRow(table.Row{"Authorized by", l.AuthorizedBy})
		}
		if l.PendingDayID != nil {
			tw.AppendRow(table.Row{"Pending lottery day", *l.PendingDayID})
		}
		if l.ExpiresAt != nil {
			tw.AppendRow(table.Row{"Prepare expires", l.ExpiresAt.Local().Format("15:04:05")})
		}
	}
	tw.Render()
	return nil
}

func (rt *runtime) printAttempt(a *model.LotteryClosingAttempt) error {
	if rt.v.GetBool("json") {
		return rt.printJSON(dto.NewAttemptResponse(a))
	}

	tw := rt.newTable()
	tw.SetTitle(fmt.Sprintf("Lottery day %d: %s", a.DayID, a.Phase))
	tw.AppendHeader(table.Row{"Pack", "Start", "End", "Sold", "Price", "Amount", "Outcome"})
	for _, line := range a.Lines {
		tw.AppendRow(table.Row{
			line.PackID, line.StartingSerial, line.EndingSerial, line.TicketsSold,
			money(line.UnitPrice), money(line.SalesAmount), line.Outcome,
		})
	}
	tw.AppendFooter(table.Row{"", "", "Total", a.TicketsSold, "", money(a.LotteryTotal), ""})
	tw.Render()
	if !a.ExpiresAt.IsZero() && a.Phase == model.LotteryPhasePrepared {
		fmt.Fprintf(rt.out, "commit before %s\n", a.ExpiresAt.Local().Format("15:04:05"))
	}
	return nil
}

type finalizeOutput struct {
	Draft        dto.DraftResponse   `json:"draft"`
	SettlementID string              `json:"settlement_id"`
	Lottery      *dto.CommitResponse `json:"lottery,omitempty"`
}

func (rt *runtime) printResult(res *finalize.Result) error {
	if rt.v.GetBool("json") {
		out := finalizeOutput{Draft: dto.NewDraftResponse(res.Draft), SettlementID: res.SettlementID}
		if res.Lottery != nil {
			lottery := dto.NewCommitResponse(res.Lottery)
			out.Lottery = &lottery
		}
		return rt.printJSON(out)
	}

	tw := rt.newTable()
	tw.SetTitle("Closing finalized")
	tw.AppendRows([]table.Row{
		{"Draft", res.Draft.ID},
		{"Status", res.Draft.Status},
		{"Settlement", res.SettlementID},
	})
	if l := res.Lottery; l != nil {
		tw.AppendSeparator()
		tw.AppendRows([]table.Row{
			{"Lottery day", l.DayID},
			{"Pack closings", l.ClosingsCreated},
			{"Lottery total", money(l.LotteryTotal)},
			{"Next lottery day", l.NextDayID},
		})
	}
	tw.Render()
	return nil
}
