package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/ui"
	"github.com/urfave/cli/v3"
)

const watchLogFile = "./tmp/psync-watch.log"

// Watch launches the terminal watch view for homework or documents.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	kind, ok := models.ParseKind(cmd.StringArg("kind"))
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", shared.ErrInvalidArgument, cmd.StringArg("kind"))
	}
	// Redirect logs to file to avoid interfering with TUI rendering
	path := r.config.Log.File
	if path == "" {
		path = watchLogFile
	}
	fileLogger, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	if err := r.requireSession(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine := r.Engine()
	go engine.WatchSession(ctx)
	go func() {
		if err := r.Sessions().Watch(ctx); err != nil {
			r.logger.Warn("session watcher stopped", "err", err)
		}
	}()

	scope, title := watchTarget(kind, cmd.String("course"), cmd.String("dir"))

	switch kind {
	case models.KindDocuments:
		m := ui.NewModel[models.Document](ctx, title, scope, engine.Documents, ui.DocumentRow)
		engine.OnSessionExpired(m.SessionExpired)
		err = ui.Run(ctx, m)
	default:
		m := ui.NewModel[models.Homework](ctx, title, scope, engine.Homework, ui.HomeworkRow(r.now))
		engine.OnSessionExpired(m.SessionExpired)
		err = ui.Run(ctx, m)
	}

	cancel()
	engine.Wait()
	if err != nil {
		return fmt.Errorf("error running watch view: %w", err)
	}
	return nil
}

// watchTarget builds the scope and view title for kind.
func watchTarget(kind models.Kind, course, dir string) (models.Scope, string) {
	scope := models.Scope{CourseCode: course}
	if kind == models.KindDocuments {
		scope.DirectoryID = dir
	}
	return scope, fmt.Sprintf("%s · %s", kind, scope.String())
}
