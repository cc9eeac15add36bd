package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/store"
	"github.com/rileyhilliard/fleet/pkg/sshutil"
)

// ImportTag marks hosts imported from an ssh_config file.
const ImportTag = "ssh-config"

// HostView is a host with its tags.
type HostView struct {
	store.Host
	Tags []string
}

func wrapStore(err error, message string) error {
	if errors.IsCode(err, errors.ErrStore) {
		return err
	}
	return errors.WrapWithCode(err, errors.ErrStore, message, "")
}

func unknownHost(fqdn string) error {
	return errors.New(errors.ErrQuery,
		fmt.Sprintf("Host %s is not in the inventory", fqdn),
		"Add it with 'fleet host add' or discover it with 'fleet sweep'")
}

// Hosts lists the inventory. Hosts never seen up are left out unless all
// is set.
func (s *Service) Hosts(ctx context.Context, all bool) ([]HostView, error) {
	hosts, err := s.store.ListHosts(ctx, all)
	if err != nil {
		return nil, wrapStore(err, "Can't list hosts")
	}
	index, err := s.store.TagIndex(ctx)
	if err != nil {
		return nil, wrapStore(err, "Can't load host tags")
	}

	out := make([]HostView, len(hosts))
	for i, h := range hosts {
		out[i] = HostView{Host: h}
		for tag := range index[h.FQDN] {
			out[i].Tags = append(out[i].Tags, tag)
		}
		sort.Strings(out[i].Tags)
	}
	return out, nil
}

// AddHost registers a host by name. ip may be empty, in which case probes
// dial the name. Returns false when the host was already known.
func (s *Service) AddHost(ctx context.Context, fqdn, ip, user string) (bool, error) {
	fqdn = strings.TrimSpace(fqdn)
	if fqdn == "" || strings.ContainsAny(fqdn, " \t!%|&") {
		return false, errors.New(errors.ErrQuery,
			fmt.Sprintf("%q is not a usable host name", fqdn),
			"Host names can't contain spaces or any of ! % | &")
	}

	short, _, _ := strings.Cut(fqdn, ".")
	created, err := s.store.EnsureHost(ctx, fqdn, short, ip)
	if err != nil {
		return false, wrapStore(err, "Can't add host "+fqdn)
	}
	if user != "" {
		if _, err := s.store.SetHostLogin(ctx, fqdn, user, ""); err != nil {
			return created, wrapStore(err, "Can't set login for "+fqdn)
		}
	}
	s.log.Debug("host %s added (new=%t)", fqdn, created)
	return created, nil
}

// RemoveHost deletes a host together with its executions and tags.
func (s *Service) RemoveHost(ctx context.Context, fqdn string) error {
	removed, err := s.store.DeleteHost(ctx, fqdn)
	if err != nil {
		return wrapStore(err, "Can't remove host "+fqdn)
	}
	if !removed {
		return unknownHost(fqdn)
	}
	return s.engine.TagsChanged(ctx)
}

// SetLogin overrides the SSH user and key file of a host. Empty values
// restore the configured defaults.
func (s *Service) SetLogin(ctx context.Context, fqdn, user, keyFile string) error {
	if keyFile != "" {
		keyFile = config.ExpandTilde(keyFile)
	}
	ok, err := s.store.SetHostLogin(ctx, fqdn, user, keyFile)
	if err != nil {
		return wrapStore(err, "Can't set login for "+fqdn)
	}
	if !ok {
		return unknownHost(fqdn)
	}
	return nil
}

// Tag attaches tag to every host in fqdns. All hosts must exist.
func (s *Service) Tag(ctx context.Context, tag, description string, fqdns ...string) error {
	if err := validTag(tag); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, fqdn := range fqdns {
			h, err := tx.GetHost(ctx, fqdn)
			if err != nil {
				return err
			}
			if h == nil {
				return unknownHost(fqdn)
			}
			if err := tx.TagHost(ctx, fqdn, tag, description); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.IsCode(err, errors.ErrQuery) {
			return err
		}
		return wrapStore(err, "Can't tag hosts with "+tag)
	}
	return s.engine.TagsChanged(ctx)
}

// TagSelection tags every host selected by query and returns their names.
// A query that selects nothing is an error.
func (s *Service) TagSelection(ctx context.Context, tag, description, query string) ([]string, error) {
	if err := validTag(tag); err != nil {
		return nil, err
	}
	hosts, err := s.selectHosts(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, errors.New(errors.ErrQuery,
			fmt.Sprintf("No hosts match %q", query),
			"Check the selection with: fleet select '"+query+"'")
	}
	fqdns := make([]string, len(hosts))
	for i, h := range hosts {
		fqdns[i] = h.FQDN
	}
	if err := s.Tag(ctx, tag, description, fqdns...); err != nil {
		return nil, err
	}
	return fqdns, nil
}

// Untag removes tag from every host in fqdns. Returns how many hosts
// actually carried it.
func (s *Service) Untag(ctx context.Context, tag string, fqdns ...string) (int, error) {
	n := 0
	for _, fqdn := range fqdns {
		removed, err := s.store.UntagHost(ctx, fqdn, tag)
		if err != nil {
			return n, wrapStore(err, "Can't untag "+fqdn)
		}
		if removed {
			n++
		}
	}
	if n > 0 {
		if err := s.engine.TagsChanged(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Tags lists tag assignments, optionally for one host.
func (s *Service) Tags(ctx context.Context, fqdn string) ([]store.HostTag, error) {
	tags, err := s.store.HostTags(ctx, fqdn)
	if err != nil {
		return nil, wrapStore(err, "Can't list tags")
	}
	return tags, nil
}

func validTag(tag string) error {
	if tag == "" || strings.ContainsAny(tag, " \t!%|&") {
		return errors.New(errors.ErrQuery,
			fmt.Sprintf("%q is not a usable tag", tag),
			"Tags can't be empty or contain spaces or any of ! % | &")
	}
	return nil
}

// ImportSSHConfig adds every concrete Host alias of an ssh_config file to
// the inventory, with its User and IdentityFile as the login, and tags them
// ssh-config. An empty path means ~/.ssh/config.
func (s *Service) ImportSSHConfig(ctx context.Context, path string) ([]string, error) {
	entries, err := sshutil.ReadConfigHosts(config.ExpandTilde(path))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Can't read ssh_config", "")
	}

	var imported []string
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, e := range entries {
			if _, err := tx.EnsureHost(ctx, e.Alias, e.Alias, ""); err != nil {
				return err
			}
			if e.User != "" || e.IdentityFile != "" {
				if _, err := tx.SetHostLogin(ctx, e.Alias, e.User, e.IdentityFile); err != nil {
					return err
				}
			}
			if err := tx.TagHost(ctx, e.Alias, ImportTag, e.Summary()); err != nil {
				return err
			}
			imported = append(imported, e.Alias)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStore(err, "Can't import ssh_config hosts")
	}
	if len(imported) > 0 {
		if err := s.engine.TagsChanged(ctx); err != nil {
			return imported, err
		}
	}
	s.log.Info("imported %d hosts from ssh_config", len(imported))
	return imported, nil
}

// Updates returns the latest sweep summaries, newest first.
func (s *Service) Updates(ctx context.Context, limit int) ([]store.HostUpdate, error) {
	ups, err := s.store.ListHostUpdates(ctx, limit)
	if err != nil {
		return nil, wrapStore(err, "Can't list host updates")
	}
	return ups, nil
}

// Executions returns recorded remote commands, newest first.
func (s *Service) Executions(ctx context.Context, fqdn string, limit int) ([]store.Execution, error) {
	execs, err := s.store.ListExecutions(ctx, fqdn, limit)
	if err != nil {
		return nil, wrapStore(err, "Can't list executions")
	}
	return execs, nil
}
