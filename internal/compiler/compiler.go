// Package compiler runs the whole pipeline from a source tree of YAML
// documents to a contract bundle.
package compiler

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/codecup-codeday/rctf-spooky/internal/contract"
	"github.com/codecup-codeday/rctf-spooky/internal/perms"
	"github.com/codecup-codeday/rctf-spooky/internal/spec"
)

// Directory names below the source root.
const (
	ResponsesDir = "responses"
	RoutesDir    = "routes"
)

// Config controls one compilation.
type Config struct {
	SourceRoot string
	// Concurrency bounds per-document work; zero means runtime.NumCPU().
	Concurrency int
	Logger      zerolog.Logger
}

// Compile loads, validates, resolves and synthesizes. Any failure aborts the
// run and no bundle is returned.
func Compile(ctx context.Context, cfg Config) (*contract.Bundle, error) {
	log := cfg.Logger
	started := time.Now()
	opts := []spec.Option{spec.WithLogger(log)}
	if cfg.Concurrency > 0 {
		opts = append(opts, spec.WithConcurrency(cfg.Concurrency))
	}

	// Responses and permissions are independent of each other; routes need
	// both.
	var (
		responses []*spec.ResponseDefinition
		permCfg   *spec.PermissionConfig
		respErr   error
		permErr   error
	)
	var g errgroup.Group
	g.Go(func() error {
		responses, respErr = spec.LoadResponses(ctx, filepath.Join(cfg.SourceRoot, ResponsesDir), opts...)
		return nil
	})
	g.Go(func() error {
		permCfg, permErr = spec.LoadPermissions(ctx, cfg.SourceRoot, opts...)
		return nil
	})
	_ = g.Wait()
	if err := joinErrors(respErr, permErr); err != nil {
		log.Debug().Err(err).Msg("loading responses and permissions failed")
		return nil, err
	}
	log.Info().Int("responses", len(responses)).Int("roles", len(permCfg.Entries)).Msg("loaded responses and permissions")

	table, err := perms.Resolve(permCfg.Entries)
	if err != nil {
		var se *spec.Error
		if errors.As(err, &se) && se.Location == "" {
			se.Location = permCfg.Path
		}
		return nil, err
	}
	log.Debug().Int("roles", table.Len()).Msg("resolved permission bitmasks")

	refs := spec.NewRefs(responses, permCfg)
	routes, err := spec.LoadRoutes(ctx, filepath.Join(cfg.SourceRoot, RoutesDir), refs, opts...)
	if err != nil {
		return nil, err
	}
	log.Info().Int("routes", len(routes)).Msg("loaded routes")

	bundle, err := contract.Synthesize(contract.Input{
		Responses:   responses,
		Permissions: permCfg,
		Table:       table,
		Routes:      routes,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("summary", bundle.Summary()).Dur("took", time.Since(started)).Msg("compiled contract")
	return bundle, nil
}

func joinErrors(errs ...error) error {
	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	switch len(failed) {
	case 0:
		return nil
	case 1:
		return failed[0]
	default:
		return errors.Join(failed...)
	}
}
