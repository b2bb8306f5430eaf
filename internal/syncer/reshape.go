// internal/syncer/reshape.go
package syncer

import (
	"fmt"
	"strconv"

	gh "github.com/google/go-github/v62/github"

	"github-integration/internal/model"
)

// tagged encodes an upstream object in its GitHub JSON shape and tags it with the owning identity.
func tagged(v any, userID int64) (model.Document, error) {
	doc, err := model.ToDocument(v)
	if err != nil {
		return nil, fmt.Errorf("reshape %T: %w", v, err)
	}
	doc[model.FieldIntegrationUserID] = userID
	return doc, nil
}

func orgDocument(org *gh.Organization, userID int64) (model.Document, error) {
	return tagged(org, userID)
}

func memberDocument(member *gh.User, org string, userID int64) (model.Document, error) {
	doc, err := tagged(member, userID)
	if err != nil {
		return nil, err
	}
	doc[model.FieldOrganization] = org
	return doc, nil
}

// repoDocument renames "language" to "primary_language". The field is always
// present on stored repositories, null when GitHub reports no language.
func repoDocument(repo *gh.Repository, userID int64) (model.Document, error) {
	doc, err := tagged(repo, userID)
	if err != nil {
		return nil, err
	}
	doc[model.FieldPrimaryLanguage] = doc[model.FieldLanguage]
	delete(doc, model.FieldLanguage)
	return doc, nil
}

// repoChildDocument tags commits, pulls, issues and issue events with their repository.
func repoChildDocument(v any, fullName string, userID int64) (model.Document, error) {
	doc, err := tagged(v, userID)
	if err != nil {
		return nil, err
	}
	doc[model.FieldRepository] = fullName
	return doc, nil
}

func reshapeAll[T any](items []T, reshape func(T) (model.Document, error)) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(items))
	for _, item := range items {
		doc, err := reshape(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// withoutPullRequests drops issue listing entries that are really pull requests.
func withoutPullRequests(issues []*gh.Issue) []*gh.Issue {
	out := make([]*gh.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		out = append(out, issue)
	}
	return out
}

func repoFullName(repo *gh.Repository) string {
	if name := repo.GetFullName(); name != "" {
		return name
	}
	return repo.GetOwner().GetLogin() + "/" + repo.GetName()
}

// unionRepos appends repos not already present, preserving first-seen order. Repositories
// are keyed by upstream id, so a rename between the two listings is still one repository;
// full name is the key only for entries without an id.
func unionRepos(sets ...[]*gh.Repository) []*gh.Repository {
	seen := map[string]bool{}
	var out []*gh.Repository
	for _, set := range sets {
		for _, repo := range set {
			key := "name:" + repoFullName(repo)
			if id := repo.GetID(); id != 0 {
				key = "id:" + strconv.FormatInt(id, 10)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, repo)
		}
	}
	return out
}
