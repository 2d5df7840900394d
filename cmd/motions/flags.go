package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"council-motions/internal/models"
	"council-motions/internal/motion"
	"council-motions/internal/tally"
)

func parseID(arg, what string) (uint, error) {
	v, err := strconv.ParseUint(arg, 10, 0)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return uint(v), nil
}

// parseEntry reads PARTY:APPROVE:REJECT[:NOTES].
func parseEntry(s string) (motion.VoteEntry, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return motion.VoteEntry{}, fmt.Errorf("invalid vote entry %q: want PARTY:APPROVE:REJECT[:NOTES]", s)
	}
	nums := make([]uint, 3)
	for i := range nums {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 0)
		if err != nil {
			return motion.VoteEntry{}, fmt.Errorf("invalid vote entry %q: %w", s, err)
		}
		nums[i] = uint(v)
	}
	e := motion.VoteEntry{PartyID: nums[0], Approve: nums[1], Reject: nums[2]}
	if len(parts) == 4 {
		e.Notes = parts[3]
	}
	return e, nil
}

func parseEntries(raw []string) ([]motion.VoteEntry, error) {
	out := make([]motion.VoteEntry, 0, len(raw))
	for _, s := range raw {
		e, err := parseEntry(s)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type roundFlags struct {
	voteType string
	voteName string
}

func (f *roundFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.voteType, "vote-type", string(models.VoteTypeRegular), "round vote type: regular or refer_to_committee")
	cmd.Flags().StringVar(&f.voteName, "vote-name", "", "round name; empty is the default round")
}

func (f roundFlags) key() tally.Key {
	return tally.Key{Type: models.VoteType(f.voteType), Name: f.voteName}
}

// optionalUint returns nil unless the flag was given.
func optionalUint(cmd *cobra.Command, name string) *uint {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetUint(name)
	if err != nil {
		return nil
	}
	return &v
}

func optionalRevision(cmd *cobra.Command) *uint64 {
	if !cmd.Flags().Changed("if-revision") {
		return nil
	}
	v, err := cmd.Flags().GetUint64("if-revision")
	if err != nil {
		return nil
	}
	return &v
}

// readDocument loads a file and guesses its media type from the extension
// unless one is given.
func readDocument(path, mediaType string) (*motion.Document, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(path))
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return &motion.Document{Name: filepath.Base(path), MediaType: mediaType, Data: data}, nil
}
