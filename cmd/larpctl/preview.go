package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/larp/internal/engine"
)

// previewInput is the file read by `larpctl preview`.
type previewInput struct {
	Action engine.Action    `json:"action"`
	Holder engine.RoleState `json:"holder"`
	Now    *time.Time       `json:"now,omitempty"`
}

type previewOutput struct {
	Outcome engine.Outcome   `json:"outcome"`
	Holder  engine.RoleState `json:"holder"`
}

func newPreviewCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Resolve an action against a holder offline",
		Long: `Resolve an action against a holder without a server. FILE (or - for
stdin) holds {"action": ..., "holder": ..., "now": ...}; the outcome and
the holder after applying it are printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readPreviewInput(cmd, args[0])
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			if in.Now != nil {
				now = *in.Now
			}
			if at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parsing --at: %w", err)
				}
			}

			out, err := preview(in, now)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "resolve at this RFC 3339 time instead of the file's or now")
	return cmd
}

func readPreviewInput(cmd *cobra.Command, path string) (*previewInput, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var in previewInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &in, nil
}

func preview(in *previewInput, now time.Time) (*previewOutput, error) {
	outcome, err := engine.Resolve(in.Action, in.Holder, now)
	if err != nil {
		return nil, err
	}
	return &previewOutput{
		Outcome: outcome,
		Holder:  engine.ApplyOutcome(in.Holder, outcome, now),
	}, nil
}
