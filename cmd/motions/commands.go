package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"council-motions/internal/collector"
	"council-motions/internal/models"
	"council-motions/internal/motion"
	"council-motions/internal/store"
	"council-motions/internal/tui"
)

// withApp opens the wired app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(loadedCfg, "")
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, _ *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			})
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Import parties, committees, terms and sessions from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := store.LoadReference(f)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.repo.ImportReference(ctx, data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d parties, %d committees, %d terms, %d sessions\n",
					len(data.Parties), len(data.Committees), len(data.Terms), len(data.Sessions))
				return nil
			})
		},
	}
}

func motionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "motion",
		Short: "Create and inspect motions",
	}

	var req motion.CreateMotionRequest
	var motionType string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a motion in draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Type = models.MotionType(motionType)
			req.SessionID = optionalUint(cmd, "session")
			req.Actor = actor()
			return withApp(cmd, func(ctx context.Context, a *app) error {
				m, err := a.engine.CreateMotion(ctx, req)
				if err != nil {
					return err
				}
				printMotion(cmd.OutOrStdout(), m)
				return nil
			})
		},
	}
	create.Flags().StringVar(&req.Title, "title", "", "motion title")
	create.Flags().StringVar(&req.Body, "body", "", "motion text")
	create.Flags().StringVar(&req.Rationale, "rationale", "", "rationale")
	create.Flags().StringVar(&motionType, "type", string(models.MotionTypeGeneral), "general or resolution")
	create.Flags().UintVar(&req.GroupID, "group", 0, "submitting group id")
	create.Flags().Uint("session", 0, "session id")
	create.Flags().UintSliceVar(&req.PartyIDs, "party", nil, "sponsoring party ids")
	_ = create.MarkFlagRequired("title")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a motion with its rounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				board, err := a.engine.Snapshot(ctx, id)
				if err != nil {
					return err
				}
				printMotion(cmd.OutOrStdout(), board.Motion)
				printRounds(cmd.OutOrStdout(), board.Rounds)
				return nil
			})
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

func transitionCommand() *cobra.Command {
	var (
		req          motion.TransitionRequest
		rf           roundFlags
		rawEntries   []string
		docPath      string
		docMediaType string
	)
	cmd := &cobra.Command{
		Use:   "transition ID STATUS",
		Short: "Move a motion to a new status, optionally recording a round",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			req.MotionID = id
			req.Target = models.Status(args[1])
			req.CommitteeID = optionalUint(cmd, "committee")
			req.SessionID = optionalUint(cmd, "session")
			req.Actor = actor()
			if req.Document, err = readDocument(docPath, docMediaType); err != nil {
				return err
			}
			if len(rawEntries) > 0 {
				entries, err := parseEntries(rawEntries)
				if err != nil {
					return err
				}
				req.Round = &motion.RoundEntries{Key: rf.key(), Entries: entries}
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.RequestTransition(ctx, req)
				if err != nil {
					return err
				}
				printCommitted(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&req.Reason, "reason", "", "reason recorded in the history")
	cmd.Flags().Uint("committee", 0, "committee id for referrals")
	cmd.Flags().Uint("session", 0, "session id")
	cmd.Flags().StringArrayVar(&rawEntries, "entry", nil, "vote entry PARTY:APPROVE:REJECT[:NOTES], repeatable")
	cmd.Flags().BoolVar(&req.Replace, "replace", false, "drop parties of the round missing from the entries")
	cmd.Flags().BoolVar(&req.AllowUnresolvedSeats, "allow-unresolved-seats", false, "skip the seat cap when no term applies")
	cmd.Flags().StringVar(&docPath, "document", "", "answer document file")
	cmd.Flags().StringVar(&docMediaType, "document-type", "", "answer document media type")
	return cmd
}

func voteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Record or remove a single party's vote",
	}

	var (
		req motion.UpsertVoteRequest
		rf  roundFlags
	)
	set := &cobra.Command{
		Use:   "set MOTION",
		Short: "Create or update one party's vote in a round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			req.MotionID = id
			req.Key = rf.key()
			req.IfRevision = optionalRevision(cmd)
			return withApp(cmd, func(ctx context.Context, a *app) error {
				rec, err := a.engine.UpsertVote(ctx, req)
				if err != nil {
					return err
				}
				printVote(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
	rf.register(set)
	set.Flags().UintVar(&req.PartyID, "party", 0, "party id")
	set.Flags().UintVar(&req.Approve, "approve", 0, "votes in favor")
	set.Flags().UintVar(&req.Reject, "reject", 0, "votes against")
	set.Flags().StringVar(&req.Notes, "notes", "", "notes")
	set.Flags().Uint64("if-revision", 0, "fail unless the round is at this revision")
	set.Flags().BoolVar(&req.AllowUnresolvedSeats, "allow-unresolved-seats", false, "skip the seat cap when no term applies")
	_ = set.MarkFlagRequired("party")

	var (
		delRound roundFlags
		delParty uint
	)
	del := &cobra.Command{
		Use:   "delete MOTION",
		Short: "Remove one party's vote and reaggregate the round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				view, err := a.engine.DeleteVote(ctx, id, delRound.key(), delParty)
				if err != nil {
					return err
				}
				printRounds(cmd.OutOrStdout(), []motion.RoundView{view})
				return nil
			})
		},
	}
	delRound.register(del)
	del.Flags().UintVar(&delParty, "party", 0, "party id")
	_ = del.MarkFlagRequired("party")

	cmd.AddCommand(set, del)
	return cmd
}

func roundCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "round",
		Short: "Record, inspect and delete vote rounds",
	}

	var (
		req        motion.RecordRoundRequest
		rf         roundFlags
		rawEntries []string
	)
	record := &cobra.Command{
		Use:   "record MOTION",
		Short: "Record a batch of party votes as one round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			entries, err := parseEntries(rawEntries)
			if err != nil {
				return err
			}
			req.MotionID = id
			req.Round = motion.RoundEntries{Key: rf.key(), Entries: entries}
			req.CommitteeID = optionalUint(cmd, "committee")
			req.IfRevision = optionalRevision(cmd)
			req.Actor = actor()
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.RecordRound(ctx, req)
				if err != nil {
					return err
				}
				printRounds(cmd.OutOrStdout(), []motion.RoundView{res.RoundView})
				if res.Committed != nil {
					printCommitted(cmd.OutOrStdout(), *res.Committed)
				}
				return nil
			})
		},
	}
	rf.register(record)
	record.Flags().StringArrayVar(&rawEntries, "entry", nil, "vote entry PARTY:APPROVE:REJECT[:NOTES], repeatable")
	record.Flags().BoolVar(&req.Replace, "replace", false, "drop parties of the round missing from the entries")
	record.Flags().BoolVar(&req.ApplyOutcome, "apply-outcome", false, "move the motion according to the outcome")
	record.Flags().Uint("committee", 0, "committee id for a referral outcome")
	record.Flags().StringVar(&req.Reason, "reason", "", "reason recorded with the outcome")
	record.Flags().Uint64("if-revision", 0, "fail unless the round is at this revision")
	record.Flags().BoolVar(&req.AllowUnresolvedSeats, "allow-unresolved-seats", false, "skip the seat cap when no term applies")
	_ = record.MarkFlagRequired("entry")

	var showRound roundFlags
	show := &cobra.Command{
		Use:   "show MOTION",
		Short: "Show one round, or every round without --vote-type/--vote-name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			all := !cmd.Flags().Changed("vote-type") && !cmd.Flags().Changed("vote-name")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				views, err := a.engine.Rounds(ctx, id)
				if err != nil {
					return err
				}
				if !all {
					key := showRound.key()
					filtered := views[:0]
					for _, v := range views {
						if v.Key == key {
							filtered = append(filtered, v)
						}
					}
					views = filtered
				}
				printRounds(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
	showRound.register(show)

	var delRound roundFlags
	del := &cobra.Command{
		Use:   "delete MOTION",
		Short: "Delete every vote of one round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.engine.DeleteRound(ctx, id, delRound.key()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted round %s\n", delRound.key())
				return nil
			})
		},
	}
	delRound.register(del)

	cmd.AddCommand(record, show, del)
	return cmd
}

func historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history MOTION",
		Short: "Show the status history of a motion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.engine.History(ctx, id)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}

	note := &cobra.Command{
		Use:   "note MOTION TEXT",
		Short: "Append a note under the current status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				entry, err := a.engine.AppendNote(ctx, motion.NoteRequest{MotionID: id, Reason: args[1], Actor: actor()})
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), []models.StatusHistoryEntry{entry})
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete MOTION ENTRY",
		Short: "Delete a history entry (requires --privileged)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			entryID, err := parseID(args[1], "history entry")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.engine.DeleteHistoryEntry(ctx, id, entryID, actor()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted history entry %d\n", entryID)
				return nil
			})
		},
	}

	cmd.AddCommand(note, del)
	return cmd
}

func boardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "board MOTION",
		Short: "Watch a motion's rounds and history live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "motion")
			if err != nil {
				return err
			}
			return runBoard(cmd.Context(), id)
		},
	}
}

func runBoard(parent context.Context, motionID uint) error {
	// Logs go to a file so they do not interfere with the TUI
	a, err := openApp(loadedCfg, "motions.log")
	if err != nil {
		return err
	}
	defer a.close()
	stopMetrics := a.serveMetrics()
	defer stopMetrics()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tuiUpdateCh := make(chan any, collector.TUIChannelBufferSize)
	coll, err := collector.NewCollector(a.engine, a.repo, motionID, a.cfg.BoardInterval, tuiUpdateCh, a.logger)
	if err != nil {
		return err
	}

	collDone := make(chan struct{})
	go func() {
		defer close(collDone)
		if err := coll.Run(ctx); err != nil {
			a.logger.Error("collector stopped", "event", "collector_stopped", "error", err)
		}
		cancel()
	}()

	tuiErr := make(chan error, 1)
	go func() {
		tuiErr <- tui.Run(tuiUpdateCh)
		// TUI exited, cancel context to trigger shutdown
		cancel()
	}()

	<-ctx.Done()
	a.logger.Debug("shutting down", "event", "board_shutdown")

	_ = coll.Close()
	<-collDone

	// Close TUI update channel to stop sending updates
	close(tuiUpdateCh)
	select {
	case err := <-tuiErr:
		return err
	case <-time.After(collector.TUICloseDelay):
		return nil
	}
}
