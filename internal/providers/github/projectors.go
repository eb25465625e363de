package github

import (
	"context"
	"strings"

	"triggerhub/internal/trigger"
	"triggerhub/internal/trigger/filter"
)

func str(payload map[string]interface{}, path string) string {
	s, _ := filter.Lookup(payload, path).(string)
	return s
}

func boolean(payload map[string]interface{}, path string) bool {
	b, _ := filter.Lookup(payload, path).(bool)
	return b
}

func labelNames(payload map[string]interface{}, path string) []string {
	items, _ := filter.Lookup(payload, path).([]interface{})
	names := make([]string, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			if name, ok := obj["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// pullRequestFilters discriminate on action and branch identifiers.
// Branches and logins are case-sensitive; action values are not.
var pullRequestFilters = []filter.Filter{
	{Name: "action", Parameter: "actions", Path: "action"},
	{Name: "base branch", Parameter: "base_branch", Path: "pull_request.base.ref", CaseSensitive: true},
	{Name: "head branch", Parameter: "head_branch", Path: "pull_request.head.ref", CaseSensitive: true},
	{Name: "author", Parameter: "authors", Path: "pull_request.user.login", CaseSensitive: true},
	{Name: "merged", Parameter: "merged_only", Path: "pull_request.merged", Kind: filter.KindBool},
	{Name: "labels", Parameter: "labels", Path: "pull_request.labels", Kind: filter.KindList, ListKey: "name"},
}

var issuesFilters = []filter.Filter{
	{Name: "action", Parameter: "actions", Path: "action"},
	{Name: "labels", Parameter: "labels", Path: "issue.labels", Kind: filter.KindList, ListKey: "name"},
}

var starFilters = []filter.Filter{
	{Name: "action", Parameter: "actions", Path: "action"},
}

func projectPullRequest(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(pullRequestFilters, parameters, payload); err != nil {
		return nil, err
	}
	return trigger.Variables{
		"action":      str(payload, "action"),
		"number":      filter.Lookup(payload, "number"),
		"title":       str(payload, "pull_request.title"),
		"body":        str(payload, "pull_request.body"),
		"author":      str(payload, "pull_request.user.login"),
		"base_branch": str(payload, "pull_request.base.ref"),
		"head_branch": str(payload, "pull_request.head.ref"),
		"merged":      boolean(payload, "pull_request.merged"),
		"draft":       boolean(payload, "pull_request.draft"),
		"labels":      labelNames(payload, "pull_request.labels"),
		"url":         str(payload, "pull_request.html_url"),
		"repository":  str(payload, "repository.full_name"),
	}, nil
}

func projectIssues(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(issuesFilters, parameters, payload); err != nil {
		return nil, err
	}
	return trigger.Variables{
		"action":     str(payload, "action"),
		"number":     filter.Lookup(payload, "issue.number"),
		"title":      str(payload, "issue.title"),
		"body":       str(payload, "issue.body"),
		"author":     str(payload, "issue.user.login"),
		"labels":     labelNames(payload, "issue.labels"),
		"url":        str(payload, "issue.html_url"),
		"repository": str(payload, "repository.full_name"),
	}, nil
}

func projectIssueComment(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(issuesFilters, parameters, payload); err != nil {
		return nil, err
	}
	return trigger.Variables{
		"action":     str(payload, "action"),
		"number":     filter.Lookup(payload, "issue.number"),
		"comment":    str(payload, "comment.body"),
		"author":     str(payload, "comment.user.login"),
		"url":        str(payload, "comment.html_url"),
		"repository": str(payload, "repository.full_name"),
	}, nil
}

func projectPush(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	branch := strings.TrimPrefix(str(payload, "ref"), "refs/heads/")
	if configured, _ := parameters["branches"].(string); configured != "" {
		if !filter.MatchValue(configured, branch, true) {
			return nil, trigger.Ignore("branch")
		}
	}

	commits, _ := filter.Lookup(payload, "commits").([]interface{})
	return trigger.Variables{
		"branch":       branch,
		"ref":          str(payload, "ref"),
		"before":       str(payload, "before"),
		"after":        str(payload, "after"),
		"pusher":       str(payload, "pusher.name"),
		"commit_count": len(commits),
		"head_message": str(payload, "head_commit.message"),
		"repository":   str(payload, "repository.full_name"),
	}, nil
}

func projectStar(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(starFilters, parameters, payload); err != nil {
		return nil, err
	}
	return trigger.Variables{
		"action":     str(payload, "action"),
		"user":       str(payload, "sender.login"),
		"repository": str(payload, "repository.full_name"),
		"starred_at": str(payload, "starred_at"),
	}, nil
}

func projectRelease(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	return trigger.Variables{
		"action":     str(payload, "action"),
		"tag":        str(payload, "release.tag_name"),
		"name":       str(payload, "release.name"),
		"author":     str(payload, "release.author.login"),
		"prerelease": boolean(payload, "release.prerelease"),
		"url":        str(payload, "release.html_url"),
		"repository": str(payload, "repository.full_name"),
	}, nil
}

func projectors() map[string]trigger.Projector {
	return map[string]trigger.Projector{
		"push":               trigger.ProjectorFunc(projectPush),
		"issues":             trigger.ProjectorFunc(projectIssues),
		"issue_comment":      trigger.ProjectorFunc(projectIssueComment),
		"pull_request":       trigger.ProjectorFunc(projectPullRequest),
		"star":               trigger.ProjectorFunc(projectStar),
		"release_published":  trigger.ProjectorFunc(projectRelease),
		"release_created":    trigger.ProjectorFunc(projectRelease),
		"release_released":   trigger.ProjectorFunc(projectRelease),
	}
}
