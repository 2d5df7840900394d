package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"council-motions/internal/models"
	"council-motions/internal/motion"
)

func optionalID(id *uint) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

func printMotion(w io.Writer, m models.Motion) {
	fmt.Fprintf(w, "Motion #%d: %s\n", m.ID, m.Title)
	fmt.Fprintf(w, "  type=%s status=%s committee=%s session=%s\n",
		m.Type, m.Status, optionalID(m.CommitteeID), optionalID(m.SessionID))
}

func printVote(w io.Writer, rec models.VoteRecord) {
	fmt.Fprintf(w, "Vote #%d party=%d %s/%q: %s\n", rec.ID, rec.PartyID, rec.VoteType, rec.VoteName, rec.Summary())
	fmt.Fprintf(w, "  round totals: favor=%d against=%d outcome=%s\n", rec.TotalFavor, rec.TotalAgainst, rec.Outcome)
}

func printRounds(w io.Writer, views []motion.RoundView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No votes recorded")
		return
	}
	for _, v := range views {
		fmt.Fprintf(w, "Round %s rev=%d: favor=%d against=%d outcome=%s\n",
			v.Key, v.Revision, v.Totals.Favor, v.Totals.Against, v.Totals.Outcome)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  PARTY\tAPPROVE\tREJECT\tNOTES")
		for _, rec := range v.Records {
			name := rec.Party.Name
			if name == "" {
				name = fmt.Sprintf("#%d", rec.PartyID)
			}
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%s\n", name, rec.ApproveCount, rec.RejectCount, rec.Notes)
		}
		_ = tw.Flush()
	}
}

func printCommitted(w io.Writer, c motion.CommittedStatus) {
	if c.Downgraded {
		fmt.Fprintf(w, "Requested %s, committed %s\n", c.Requested, c.Status)
	} else {
		fmt.Fprintf(w, "Committed %s\n", c.Status)
	}
	if c.Totals != nil {
		fmt.Fprintf(w, "  favor=%d against=%d outcome=%s\n", c.Totals.Favor, c.Totals.Against, c.Totals.Outcome)
	}
	printMotion(w, c.Motion)
}

func printHistory(w io.Writer, entries []models.StatusHistoryEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSTATUS\tACTOR\tCOMMITTEE\tVOTES\tDOCUMENT\tREASON")
	for _, e := range entries {
		doc := "-"
		if e.DocumentRef != "" {
			doc = e.DocumentName
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Status, e.ActorName,
			optionalID(e.CommitteeID), len(e.Votes), doc, strings.ReplaceAll(e.Reason, "\n", " / "))
	}
	_ = tw.Flush()
}
