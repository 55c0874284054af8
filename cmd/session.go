package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/portalsync/internal/services"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SessionImport converts a browser cURL command into the session file.
func (r *Runner) SessionImport(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}
	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	var capture *shared.CurlCapture
	var err error
	if curlFile != "" {
		capture, err = shared.ParseCurlFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		r.logger.Info("parsed cURL from file", "file", curlFile)
	} else {
		capture, err = shared.ParseCurlCommand(curlCmd)
		if err != nil {
			return fmt.Errorf("failed to parse cURL command: %w", err)
		}
	}

	sess, err := services.SessionFromCurl(capture, r.now())
	if err != nil {
		return err
	}

	if base := strings.TrimRight(r.config.Portal.BaseURL, "/"); sess.BaseURL != "" && base != "" && sess.BaseURL != base {
		r.logger.Warn("captured request is for a different host than portal.base_url", "captured", sess.BaseURL, "configured", base)
	}

	store := r.Sessions()
	if err := store.Save(sess); err != nil {
		return err
	}
	r.logger.Info("session saved", "path", store.Path(), "headers", len(sess.Headers))

	return r.writePlain("✓ Session imported\nSaved to: %s\nRun 'psync session status' to check it.\n", store.Path())
}

// SessionStatus asks the portal whether the session is still accepted.
func (r *Runner) SessionStatus(ctx context.Context, cmd *cli.Command) error {
	store := r.Sessions()
	sess := store.Current()
	if sess == nil {
		r.writePlain("✗ No session at %s\n", store.Path())
		return fmt.Errorf("%w: run 'psync session import' first", shared.ErrMissingSession)
	}

	err := r.Portal().CheckSession(ctx)
	switch {
	case err == nil:
		return r.writePlain("✓ Authenticated\nImported: %s\n", sess.ImportedAt.Format("2006-01-02 15:04"))
	case errors.Is(err, shared.ErrSessionExpired):
		r.writePlain("✗ Session expired; sign in again and re-import it\n")
		return err
	default:
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
}

// SessionLogin opens the portal login page.
func (r *Runner) SessionLogin(ctx context.Context, cmd *cli.Command) error {
	url := r.Portal().LoginURL()
	if !cmd.Bool("print") {
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("could not open browser", "err", err)
		}
	}
	return r.writePlain("Sign in at %s, then copy any portal request as cURL and run 'psync session import'.\n", url)
}
