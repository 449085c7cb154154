package view

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/evidence-registry/evreg/pkg/contract"
	"github.com/evidence-registry/evreg/pkg/evidence"
	"github.com/evidence-registry/evreg/pkg/journal"
	"github.com/evidence-registry/evreg/pkg/session"
)

// TimestampLayout renders evidence creation times.
const TimestampLayout = "2006-01-02 15:04:05 MST"

// Console writes notifications and records to a terminal.
type Console struct {
	out   io.Writer
	title map[Variant]*color.Color
	label *color.Color
}

// NewConsole returns a console writing to out. Colors are used only when
// useColor is set.
func NewConsole(out io.Writer, useColor bool) *Console {
	c := &Console{
		out: out,
		title: map[Variant]*color.Color{
			VariantDefault:     color.New(color.FgCyan, color.Bold),
			VariantSuccess:     color.New(color.FgGreen, color.Bold),
			VariantDestructive: color.New(color.FgRed, color.Bold),
		},
		label: color.New(color.Faint),
	}
	for _, col := range c.title {
		setColor(col, useColor)
	}
	setColor(c.label, useColor)
	return c
}

func setColor(c *color.Color, on bool) {
	if on {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}

// Notify prints one notification.
func (c *Console) Notify(n Notification) {
	col, ok := c.title[n.Variant]
	if !ok {
		col = c.title[VariantDefault]
	}
	marker := "•"
	switch n.Variant {
	case VariantSuccess:
		marker = "✔"
	case VariantDestructive:
		marker = "✖"
	}
	fmt.Fprintf(c.out, "%s %s\n", col.Sprint(marker+" "+n.Title), n.Description)
}

// Session prints the connected account and its role, as the top bar does.
func (c *Console) Session(s session.Session) {
	if !s.Connected {
		fmt.Fprintf(c.out, "%s %s\n", c.label.Sprint("session:"), s.State)
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s (%s)\n", c.label.Sprint("account:"), s.Address.Hex(), contract.ShortAddress(s.Address))
	fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("role:"), s.Role)
	if s.ChainID != nil {
		fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("chain:"), s.ChainID)
	}
	fmt.Fprintf(tw, "%s\towner=%t police=%t court_official=%t\n", c.label.Sprint("flags:"), s.Roles.Owner, s.Roles.Police, s.Roles.CourtOfficial)
	_ = tw.Flush()
}

// Panels prints the panels an account is shown.
func (c *Console) Panels(p Panels) {
	if p.Restricted {
		c.Notify(destructive(p.Title, p.Message))
		return
	}
	for _, panel := range p.Visible {
		fmt.Fprintf(c.out, "  - %s\n", panel)
	}
}

// Record prints one evidence entry.
func (c *Console) Record(r evidence.Record) {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%d\n", c.label.Sprint("Evidence ID:"), r.ID)
	fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("Case ID:"), r.CaseID)
	fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("Description:"), r.Description)
	fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("IPFS Hash:"), r.ContentHash)
	fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("View File:"), r.GatewayURL)
	fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("Uploaded By:"), r.Submitter.Hex())
	fmt.Fprintf(tw, "%s\t%s\n", c.label.Sprint("Timestamp:"), FormatTimestamp(r.Timestamp))
	_ = tw.Flush()
}

// Pins prints journal entries as a table.
func (c *Console) Pins(entries []journal.PinEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no uploads recorded")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCID\tCASE\tFILE\tPINNED\tDETAIL")
	for _, e := range entries {
		detail := e.TxHash
		if e.Status == journal.StatusOrphaned {
			detail = e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Status, e.CID, e.CaseID, e.FileName, e.PinnedAt.Format(time.RFC3339), detail)
	}
	_ = tw.Flush()
}

// FormatTimestamp renders seconds since the epoch in UTC.
func FormatTimestamp(seconds uint64) string {
	return time.Unix(int64(seconds), 0).UTC().Format(TimestampLayout) // #nosec G115
}
