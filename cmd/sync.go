package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/portalsync/internal/formatter"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/syncer"
	"github.com/desertthunder/portalsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

type operation string

const (
	opGet     operation = "get"
	opRefresh operation = "refresh"
	opStream  operation = "stream"
)

// syncAction builds the action for one resource operation.
func (r *Runner) syncAction(kind models.Kind, op operation) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.requireSession(); err != nil {
			return err
		}

		f, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}

		scope := models.Scope{CourseCode: cmd.String("course")}
		if kind == models.KindDocuments {
			scope.DirectoryID = cmd.String("dir")
		}
		skip := op == opGet && cmd.Bool("skip-cache")

		r.logger.Debug("sync", "kind", kind, "op", op, "scope", scope.String())

		engine := r.Engine()
		switch kind {
		case models.KindHomework:
			return runSync(ctx, r, engine.Homework, op, scope, skip, f, formatter.HomeworkColumns(r.now()))
		case models.KindDocuments:
			return runSync(ctx, r, engine.Documents, op, scope, skip, f, formatter.DocumentColumns(r.now()))
		default:
			return fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidArgument, kind)
		}
	}
}

func runSync[T models.Item](
	ctx context.Context,
	r *Runner,
	res *syncer.Resource[T],
	op operation,
	scope models.Scope,
	skip bool,
	f formatter.Format,
	cols []formatter.Column[T],
) error {
	progress := func(ev tasks.Event[T]) {
		if line := formatter.Event(ev); line != "" {
			r.note("%s", line)
		}
	}

	var resp *syncer.Response[T]
	var items []T
	var err error

	switch op {
	case opGet:
		resp, err = res.Get(ctx, scope, syncer.GetOpts{SkipCache: skip})
		if resp != nil {
			items = resp.Data
		}
	case opRefresh:
		resp, err = res.Refresh(ctx, scope, progress)
		if resp != nil {
			items = resp.Data
		}
	case opStream:
		ws := syncer.NewWorkingSet[T]()
		resp, err = res.Stream(ctx, scope, func(ev tasks.Event[T]) {
			ws.Apply(ev)
			progress(ev)
		})
		if err == nil {
			if resp.FromCache {
				r.note("cached: %s", formatter.Summary(len(resp.Data), true, resp.Age, 0))
			}
			r.Engine().Wait()

			snap := ws.Snapshot()
			items = snap.Items
			if snap.Err != "" {
				err = streamError(r, snap.Err)
			}
		}
	}
	if err != nil {
		return err
	}

	if resp.Superseded {
		r.note("superseded by a newer request; showing its partial result")
	}
	for _, fail := range resp.Failures {
		r.logger.Warn("unit failed", "unit", fail.Unit.Label(), "err", fail.Err)
	}
	if f == formatter.FormatTable {
		r.note("%s", formatter.Summary(len(items), resp.FromCache, resp.Age, len(resp.Failures)))
	}
	return formatter.Write(r.output, f, cols, items)
}

// streamError turns the message of a background error event back into an error.
func streamError(r *Runner, msg string) error {
	if !r.Sessions().IsAuthenticated() {
		return fmt.Errorf("%w: %s", shared.ErrSessionExpired, msg)
	}
	return fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, msg)
}
