// Package git wraps the go-git operations needed to snapshot a source tree.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Client defines the interface for Git operations
type Client interface {
	// Clone clones a repository into a local directory with the given
	// configuration
	Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error)

	// ListTags lists the tag names offered by a remote repository
	ListTags(ctx context.Context, url string) ([]string, error)

	// Cleanup removes the local repository directory
	Cleanup(ctx context.Context, repoInfo *RepositoryInfo) error
}

// CloneConfig describes a single clone operation.
type CloneConfig struct {
	// URL is the repository location
	URL string

	// Branch is the branch to clone (mutually exclusive with Tag)
	Branch string

	// Tag is the tag to clone (mutually exclusive with Branch)
	Tag string

	// Dir is the local directory to clone into
	Dir string
}

// RepositoryInfo describes a cloned repository on local disk.
type RepositoryInfo struct {
	Repository *gogit.Repository
	RemoteURL  string
	Branch     string
	Dir        string
}

// defaultGitClient implements Client using go-git
type defaultGitClient struct{}

// NewDefaultGitClient creates a new defaultGitClient
func NewDefaultGitClient() Client {
	return &defaultGitClient{}
}

// Clone performs a shallow, single-branch clone into config.Dir. The source
// tree is large, so only depth 1 of the requested reference is fetched.
func (c *defaultGitClient) Clone(ctx context.Context, config *CloneConfig) (*RepositoryInfo, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if config.Branch != "" && config.Tag != "" {
		return nil, fmt.Errorf("only one of branch or tag may be specified")
	}

	cloneOptions := &gogit.CloneOptions{
		URL:   config.URL,
		Depth: 1,
	}
	if config.Branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(config.Branch)
		cloneOptions.SingleBranch = true
	} else if config.Tag != "" {
		cloneOptions.ReferenceName = plumbing.NewTagReferenceName(config.Tag)
		cloneOptions.SingleBranch = true
	}

	repo, err := gogit.PlainCloneContext(ctx, config.Dir, false, cloneOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	repoInfo := &RepositoryInfo{
		Repository: repo,
		RemoteURL:  config.URL,
		Dir:        config.Dir,
	}

	if err := c.updateRepositoryInfo(repoInfo); err != nil {
		return nil, fmt.Errorf("failed to update repository info: %w", err)
	}

	return repoInfo, nil
}

// ListTags lists tag names on the remote without cloning it.
func (*defaultGitClient) ListTags(ctx context.Context, url string) ([]string, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})

	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list remote references: %w", err)
	}

	var tags []string
	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}
	return tags, nil
}

// Cleanup removes the local repository directory
func (*defaultGitClient) Cleanup(_ context.Context, repoInfo *RepositoryInfo) error {
	if repoInfo == nil || repoInfo.Dir == "" {
		return fmt.Errorf("repository is nil")
	}

	slog.Debug("Removing cloned repository", "dir", repoInfo.Dir)
	if err := os.RemoveAll(repoInfo.Dir); err != nil {
		return fmt.Errorf("failed to remove repository directory: %w", err)
	}

	repoInfo.Repository = nil
	return nil
}

// updateRepositoryInfo updates the repository info with current state
func (*defaultGitClient) updateRepositoryInfo(repoInfo *RepositoryInfo) error {
	if repoInfo == nil || repoInfo.Repository == nil {
		return fmt.Errorf("repository is nil")
	}

	ref, err := repoInfo.Repository.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD reference: %w", err)
	}

	if ref.Name().IsBranch() {
		repoInfo.Branch = ref.Name().Short()
	}

	return nil
}
