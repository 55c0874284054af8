package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/portalsync/internal/formatter"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists the run journal, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	f, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	runs := r.Journal()
	if runs == nil {
		return fmt.Errorf("%w: run journal unavailable at %s", shared.ErrServiceUnavailable, r.config.Database.Path)
	}

	if d := cmd.Duration("prune"); d > 0 {
		n, err := runs.Prune(r.now().Add(-d))
		if err != nil {
			return err
		}
		r.note("pruned %d runs older than %s", n, d)
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if k := cmd.String("kind"); k != "" {
		kind, ok := models.ParseKind(k)
		if !ok {
			return fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidArgument, k)
		}
		criteria["kind"] = string(kind)
	}
	if s := cmd.String("status"); s != "" {
		criteria["status"] = s
	}

	list, err := runs.List(criteria)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*models.SyncRun{}
	}
	return formatter.Write(r.output, f, formatter.RunColumns(r.now()), list)
}
