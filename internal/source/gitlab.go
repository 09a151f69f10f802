package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"actcollective.org/momentum/internal/mapper"
	"actcollective.org/momentum/internal/model"
)

const pageSize = 100

// GitLabSource reads issue lifecycle data from a single GitLab project:
// issue create/close timestamps, board-label transitions, and the merge
// requests that close each issue. Everything is normalized through the
// mapper before leaving this package.
type GitLabSource struct {
	client    *gitlab.Client
	projectID string
	logger    *slog.Logger
}

func NewGitLabSource(baseURL, token, projectID string, logger *slog.Logger) (*GitLabSource, error) {
	if projectID == "" {
		return nil, fmt.Errorf("gitlab project id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := newClient(baseURL, token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &GitLabSource{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

func newClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

// FetchEvents pulls every issue with activity since the window start and
// emits its full lifecycle. History before the window start is kept on
// purpose: a merge inside the window needs its earlier start event to form a
// cycle-time sample. The mapper drops anything at or past the window end.
func (s *GitLabSource) FetchEvents(ctx context.Context, window model.Window, sprintLabel string) ([]model.WorkItemEvent, FetchStats, error) {
	var (
		raw   []model.WorkItemEvent
		stats FetchStats
	)

	opt := &gitlab.ListProjectIssuesOptions{
		ListOptions:  gitlab.ListOptions{PerPage: pageSize, Page: 1},
		UpdatedAfter: gitlab.Ptr(window.Start),
		Scope:        gitlab.Ptr("all"),
	}
	if sprintLabel != "" {
		opt.Milestone = gitlab.Ptr(sprintLabel)
	}

	for {
		issues, resp, err := s.client.Issues.ListProjectIssues(s.projectID, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, stats, fmt.Errorf("listing issues: %v: %w", err, ErrSourceUnavailable)
		}

		for _, issue := range issues {
			if issue == nil {
				continue
			}
			stats.RawItems++

			events, skipped, err := s.issueEvents(ctx, issue)
			if err != nil {
				return nil, stats, err
			}
			stats.MalformedSkipped += skipped
			raw = append(raw, events...)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	normalized, malformed := mapper.Normalize(raw, window)
	stats.MalformedSkipped += malformed
	if malformed > 0 {
		s.logger.WarnContext(ctx, "skipped malformed records during normalization",
			"count", malformed, "project_id", s.projectID)
	}

	return normalized, stats, nil
}

func (s *GitLabSource) issueEvents(ctx context.Context, issue *gitlab.Issue) ([]model.WorkItemEvent, int, error) {
	itemID := fmt.Sprintf("issue-%d", issue.IID)
	skipped := 0

	sprint := ""
	if issue.Milestone != nil {
		sprint = issue.Milestone.Title
	}

	base := model.WorkItemEvent{
		ItemID:      itemID,
		SprintLabel: sprint,
		Title:       issue.Title,
	}

	var events []model.WorkItemEvent

	if issue.CreatedAt == nil {
		s.logger.WarnContext(ctx, "issue missing created timestamp, skipping record",
			"item_id", itemID)
		skipped++
	} else {
		ev := base
		ev.Kind = model.EventCreated
		ev.Timestamp = *issue.CreatedAt
		events = append(events, ev)
	}

	if issue.ClosedAt != nil {
		ev := base
		ev.Kind = model.EventClosed
		ev.Timestamp = *issue.ClosedAt
		events = append(events, ev)
	}

	labelEvents, labelSkipped, err := s.labelEvents(ctx, issue.IID, base)
	if err != nil {
		return nil, skipped, err
	}
	skipped += labelSkipped
	events = append(events, labelEvents...)

	mergeEvents, err := s.mergeEvents(ctx, issue.IID, base)
	if err != nil {
		return nil, skipped, err
	}
	events = append(events, mergeEvents...)

	return events, skipped, nil
}

// labelEvents walks the issue's resource label history and keeps the
// transitions that carry board meaning (started, blocked, unblocked).
func (s *GitLabSource) labelEvents(ctx context.Context, issueIID int64, base model.WorkItemEvent) ([]model.WorkItemEvent, int, error) {
	var (
		events  []model.WorkItemEvent
		skipped int
	)

	opt := &gitlab.ListLabelEventsOptions{
		ListOptions: gitlab.ListOptions{PerPage: pageSize, Page: 1},
	}

	for {
		labelEvents, resp, err := s.client.ResourceLabelEvents.ListIssueLabelEvents(s.projectID, issueIID, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, skipped, fmt.Errorf("listing label events for %s: %v: %w", base.ItemID, err, ErrSourceUnavailable)
		}

		for _, le := range labelEvents {
			if le == nil || le.Label.Name == "" {
				continue
			}

			kind, ok := mapper.MapLabelChange(le.Label.Name, le.Action)
			if !ok {
				continue
			}
			if le.CreatedAt == nil {
				s.logger.WarnContext(ctx, "label event missing timestamp, skipping record",
					"item_id", base.ItemID, "label", le.Label.Name)
				skipped++
				continue
			}

			ev := base
			ev.Kind = kind
			ev.Timestamp = *le.CreatedAt
			events = append(events, ev)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	return events, skipped, nil
}

// mergeEvents derives StartedWork and Merged from the merge requests that
// close the issue: the first MR opening counts as work starting, the first
// merge as code landing. Issues merged without a tracked MR contribute no
// cycle-time sample.
func (s *GitLabSource) mergeEvents(ctx context.Context, issueIID int64, base model.WorkItemEvent) ([]model.WorkItemEvent, error) {
	opt := &gitlab.ListMergeRequestsClosingIssueOptions{
		ListOptions: gitlab.ListOptions{PerPage: pageSize, Page: 1},
	}

	var events []model.WorkItemEvent
	for {
		mrs, resp, err := s.client.Issues.ListMergeRequestsClosingIssue(s.projectID, issueIID, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing closing merge requests for %s: %v: %w", base.ItemID, err, ErrSourceUnavailable)
		}

		for _, mr := range mrs {
			if mr == nil {
				continue
			}
			if mr.CreatedAt != nil {
				ev := base
				ev.Kind = model.EventStartedWork
				ev.Timestamp = *mr.CreatedAt
				events = append(events, ev)
			}
			if mr.MergedAt != nil {
				ev := base
				ev.Kind = model.EventMerged
				ev.Timestamp = *mr.MergedAt
				events = append(events, ev)
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	return events, nil
}
