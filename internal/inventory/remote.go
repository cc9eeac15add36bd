package inventory

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/remote"
	"github.com/rileyhilliard/fleet/internal/store"
)

func (s *Service) executor() (Executor, error) {
	if s.remote == nil {
		return nil, errors.New(errors.ErrSSH,
			"Remote execution is not available",
			"Check the ssh section of your config and the fleet key")
	}
	return s.remote, nil
}

// remoteTargets selects hosts for a remote run. Hosts that were never seen
// up are kept; the dial will say whether they answer.
func (s *Service) remoteTargets(ctx context.Context, query string) ([]remote.Target, error) {
	hosts, err := s.selectHosts(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, errors.New(errors.ErrQuery,
			"Selection "+query+" matched no hosts",
			"Preview it with 'fleet select "+query+"'")
	}
	targets := make([]remote.Target, len(hosts))
	for i, h := range hosts {
		targets[i] = remote.Target{FQDN: h.FQDN, Address: h.IP, User: h.User, KeyFile: h.SSHKeyFile}
	}
	return targets, nil
}

// Exec runs cmdline on every host selected by query and records each
// outcome.
func (s *Service) Exec(ctx context.Context, query, cmdline string) ([]remote.ExecutionResult, error) {
	ex, err := s.executor()
	if err != nil {
		return nil, err
	}
	targets, err := s.remoteTargets(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := ex.Execute(ctx, cmdline, targets, s.cfg.SSH.ChunkSize)
	if err != nil {
		return nil, err
	}
	return results, s.recordExecutions(ctx, results)
}

// RunScript feeds the local file at path to a shell on every selected host.
func (s *Service) RunScript(ctx context.Context, query, path string) ([]remote.ExecutionResult, error) {
	ex, err := s.executor()
	if err != nil {
		return nil, err
	}
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Can't read script "+path, "Check the path and its permissions")
	}
	targets, err := s.remoteTargets(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := ex.RunScript(ctx, filepath.Base(path), script, targets, s.cfg.SSH.ChunkSize)
	if err != nil {
		return nil, err
	}
	return results, s.recordExecutions(ctx, results)
}

// Deploy appends pubkey to the authorized keys of every selected host,
// authenticating with the password returned by prompt.
func (s *Service) Deploy(ctx context.Context, query, pubkey string, prompt remote.PasswordFunc) ([]remote.ExecutionResult, error) {
	ex, err := s.executor()
	if err != nil {
		return nil, err
	}
	targets, err := s.remoteTargets(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := ex.Deploy(ctx, pubkey, targets, s.cfg.SSH.ChunkSize, prompt)
	if err != nil {
		return nil, err
	}
	return results, s.recordExecutions(ctx, results)
}

func (s *Service) recordExecutions(ctx context.Context, results []remote.ExecutionResult) error {
	if len(results) == 0 {
		return nil
	}
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, r := range results {
			if err := tx.InsertExecution(ctx, &store.Execution{
				RunID:      r.RunID,
				User:       r.User,
				FQDN:       r.Target.FQDN,
				Cmdline:    r.Cmdline,
				ReturnCode: r.ReturnCode,
				Stdout:     r.Stdout,
				Stderr:     r.Stderr,
				Status:     r.Status,
				Start:      r.Start,
				End:        r.End,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("executions of run %s not recorded: %v", results[0].RunID, err)
		s.metrics.ObserveStoreFailure("executions")
		return wrapStore(err, "Can't record executions")
	}
	return nil
}
