package apiclient

import (
	"context"
	"fmt"
)

// GitConfig describes a cluster's Git-backed version control
// configuration.
type GitConfig struct {
	RepositoryURL string   `json:"repository_url"`
	Branches      []string `json:"branch_names"`
	DefaultBranch string   `json:"default_branch_name"`
}

// VCSGitConfigSearch returns the cluster's current Git configuration,
// if one has been set up.
func (c *Client) VCSGitConfigSearch(ctx context.Context) (*GitConfig, error) {
	var rows []GitConfig
	if err := c.do(ctx, "POST", pathVCSGitConfigSearch, map[string]interface{}{}, &rows); err != nil {
		return nil, fmt.Errorf("apiclient: vcs git config search: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// VCSGitConfigCreate registers a Git repository as the cluster's
// version control backend.
func (c *Client) VCSGitConfigCreate(ctx context.Context, repoURL, defaultBranch, username, accessToken string) error {
	body := map[string]interface{}{
		"repository_url":      repoURL,
		"default_branch_name": defaultBranch,
		"username":             username,
		"access_token":         accessToken,
	}
	if err := c.do(ctx, "POST", pathVCSGitConfigCreate, body, nil); err != nil {
		return fmt.Errorf("apiclient: vcs git config create: %w", err)
	}
	return nil
}

// VCSCommit commits the given objects' current state to branch with
// the given commit message.
func (c *Client) VCSCommit(ctx context.Context, guids []string, branch, message string) (commitID string, err error) {
	body := map[string]interface{}{
		"metadata":       toGUIDRefs(guids),
		"branch_name":    branch,
		"comment":        message,
	}
	var resp struct {
		CommitID string `json:"commit_id"`
	}
	if err := c.do(ctx, "POST", pathVCSGitBranchesCommit, body, &resp); err != nil {
		return "", fmt.Errorf("apiclient: vcs commit: %w", err)
	}
	return resp.CommitID, nil
}

// VCSValidateBranch reports whether branch currently diverges from
// the cluster's live metadata, without applying any change.
func (c *Client) VCSValidateBranch(ctx context.Context, branch string) (bool, error) {
	body := map[string]interface{}{"branch_name": branch}
	var resp struct {
		Diverged bool `json:"is_diverged"`
	}
	if err := c.do(ctx, "POST", pathVCSGitBranchesValidate, body, &resp); err != nil {
		return false, fmt.Errorf("apiclient: vcs validate branch: %w", err)
	}
	return resp.Diverged, nil
}

// VCSDeployCommit applies the given commit from branch onto the
// cluster, the Git-backed equivalent of a TML import.
func (c *Client) VCSDeployCommit(ctx context.Context, branch, commitID string) error {
	body := map[string]interface{}{
		"branch_name": branch,
		"commit_id":   commitID,
	}
	if err := c.do(ctx, "POST", pathVCSGitCommitsDeploy, body, nil); err != nil {
		return fmt.Errorf("apiclient: vcs deploy commit: %w", err)
	}
	return nil
}
