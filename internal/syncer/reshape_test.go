// internal/syncer/reshape_test.go
package syncer

import (
	"testing"

	gh "github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-integration/internal/model"
)

func TestUnionRepos(t *testing.T) {
	orgRepos := []*gh.Repository{repo("acme", "rockets", "Go"), repo("acme", "anvils", "")}
	userRepos := []*gh.Repository{repo("acme", "rockets", "Go"), repo("octocat", "dotfiles", "")}

	got := unionRepos(orgRepos, userRepos)

	var names []string
	for _, r := range got {
		names = append(names, repoFullName(r))
	}
	assert.Equal(t, []string{"acme/rockets", "acme/anvils", "octocat/dotfiles"}, names)
}

func TestUnionRepos_KeysOnID(t *testing.T) {
	before := repo("acme", "rockets", "Go")
	before.ID = gh.Int64(3)
	renamed := repo("acme", "rocket-engine", "Go")
	renamed.ID = gh.Int64(3)
	other := repo("acme", "rockets", "Go")
	other.ID = gh.Int64(4)

	got := unionRepos([]*gh.Repository{before}, []*gh.Repository{renamed, other})

	require.Len(t, got, 2)
	assert.Same(t, before, got[0])
	assert.Same(t, other, got[1])
}

func TestRepoFullName_FallsBackToOwnerAndName(t *testing.T) {
	r := &gh.Repository{Name: gh.String("rockets"), Owner: &gh.User{Login: gh.String("acme")}}
	assert.Equal(t, "acme/rockets", repoFullName(r))
}

func TestWithoutPullRequests(t *testing.T) {
	issues := []*gh.Issue{
		{Number: gh.Int(1)},
		{Number: gh.Int(2), PullRequestLinks: &gh.PullRequestLinks{}},
		{Number: gh.Int(3)},
	}

	got := withoutPullRequests(issues)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].GetNumber())
	assert.Equal(t, 3, got[1].GetNumber())
}

func TestDocuments_AreTagged(t *testing.T) {
	member, err := memberDocument(&gh.User{Login: gh.String("wile")}, "acme", 7)
	require.NoError(t, err)
	assert.Equal(t, "wile", member["login"])
	assert.Equal(t, "acme", member[model.FieldOrganization])
	assert.Equal(t, int64(7), member[model.FieldIntegrationUserID])

	commit, err := repoChildDocument(&gh.RepositoryCommit{SHA: gh.String("abc")}, "acme/rockets", 7)
	require.NoError(t, err)
	assert.Equal(t, "abc", commit["sha"])
	assert.Equal(t, "acme/rockets", commit[model.FieldRepository])

	r, err := repoDocument(repo("acme", "rockets", "Go"), 7)
	require.NoError(t, err)
	assert.Equal(t, "Go", r[model.FieldPrimaryLanguage])
	assert.NotContains(t, r, model.FieldLanguage)
}
