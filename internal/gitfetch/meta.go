package gitfetch

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v68/github"
	gitlab "github.com/xanzy/go-gitlab"
)

// RepoMeta identifies the repository on its hosting provider. Fields stay
// empty when the URL does not match a recognized host.
type RepoMeta struct {
	Host          string `json:"host,omitempty"`
	Owner         string `json:"owner,omitempty"`
	Name          string `json:"name,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// metaFromURL extracts host/owner/name from https and ssh remote URLs.
func metaFromURL(repoURL string) RepoMeta {
	u := strings.TrimSuffix(strings.TrimSpace(repoURL), "/")
	u = strings.TrimSuffix(u, ".git")

	// ssh form: git@host:owner/name
	if at := strings.Index(u, "@"); at >= 0 && strings.Contains(u[at:], ":") && !strings.Contains(u, "://") {
		u = strings.Replace(u[at+1:], ":", "/", 1)
	} else if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}

	parts := strings.Split(u, "/")
	if len(parts) < 3 {
		return RepoMeta{}
	}
	host := parts[0]
	switch {
	case strings.Contains(host, "github.com"), strings.Contains(host, "gitlab.com"):
		return RepoMeta{
			Host:  host,
			Owner: parts[1],
			Name:  parts[len(parts)-1],
		}
	default:
		return RepoMeta{}
	}
}

// ResolveDefaultBranch asks the hosting provider's API for the default
// branch. Failures are non-fatal: the field is simply left empty.
func (m *RepoMeta) ResolveDefaultBranch(ctx context.Context) {
	if m.Owner == "" || m.Name == "" {
		return
	}
	switch {
	case strings.Contains(m.Host, "github.com"):
		repo, _, err := github.NewClient(nil).Repositories.Get(ctx, m.Owner, m.Name)
		if err != nil {
			log.Debug("github metadata lookup failed", "owner", m.Owner, "repo", m.Name, "err", err)
			return
		}
		m.DefaultBranch = repo.GetDefaultBranch()
	case strings.Contains(m.Host, "gitlab.com"):
		client, err := gitlab.NewClient("")
		if err != nil {
			return
		}
		proj, _, err := client.Projects.GetProject(m.Owner+"/"+m.Name, nil, gitlab.WithContext(ctx))
		if err != nil {
			log.Debug("gitlab metadata lookup failed", "project", m.Owner+"/"+m.Name, "err", err)
			return
		}
		m.DefaultBranch = proj.DefaultBranch
	}
}
