// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v62/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	custom_errors "github-integration/internal/errors"
	"github-integration/internal/github"
	"github-integration/internal/integration"
	"github-integration/internal/model"
	"github-integration/internal/store"
)

const (
	// Number of identities resynced in parallel by the periodic loop
	concurrency = 5

	instrumentationName = "github-integration/internal/syncer"
)

// Upstream is the part of the GitHub client the syncer drives.
type Upstream interface {
	ListUserOrgs(ctx context.Context, req github.PageRequest) (github.Page[*gh.Organization], error)
	ListOrgRepos(ctx context.Context, org string, req github.PageRequest) (github.Page[*gh.Repository], error)
	ListUserRepos(ctx context.Context, req github.PageRequest) (github.Page[*gh.Repository], error)
	ListOrgMembers(ctx context.Context, org string, req github.PageRequest) (github.Page[*gh.User], error)
	ListCommits(ctx context.Context, owner, repo string, req github.PageRequest) (github.Page[*gh.RepositoryCommit], error)
	ListPulls(ctx context.Context, owner, repo string, req github.PageRequest) (github.Page[*gh.PullRequest], error)
	ListIssues(ctx context.Context, owner, repo string, req github.PageRequest) (github.Page[*gh.Issue], error)
	ListIssueEvents(ctx context.Context, owner, repo string, req github.PageRequest) (github.Page[*gh.IssueEvent], error)
}

// ClientFactory builds an Upstream bound to one access token.
type ClientFactory func(token string) (Upstream, error)

// Config tunes a Syncer.
type Config struct {
	// PageSize is requested on every paginated call; a shorter page ends the stream.
	PageSize int
	// MaxRetries bounds the retries of a page that failed transiently.
	MaxRetries int
	// RepoConcurrency is the number of repositories synced in parallel. 1 keeps the sync sequential.
	RepoConcurrency int
	// Interval between periodic resyncs of every active integration. Zero disables them.
	Interval time.Duration
}

// Syncer orchestrates the fetching and storing of data.
type Syncer struct {
	store        store.Store
	integrations *integration.Manager
	newClient    ClientFactory
	logger       *slog.Logger
	cfg          Config
	newBackOff   func() backoff.BackOff
	now          func() time.Time
	locks        sync.Map
	metrics      *syncMetrics
	tracer       trace.Tracer
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(s store.Store, integrations *integration.Manager, newClient ClientFactory, logger *slog.Logger, cfg Config) *Syncer {
	if cfg.PageSize < 1 || cfg.PageSize > github.MaxPerPage {
		cfg.PageSize = github.MaxPerPage
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RepoConcurrency < 1 {
		cfg.RepoConcurrency = 1
	}
	return &Syncer{
		store:        s,
		integrations: integrations,
		newClient:    newClient,
		logger:       logger,
		cfg:          cfg,
		newBackOff:   newPageBackOff,
		now:          time.Now,
		metrics:      newSyncMetrics(otel.Meter(instrumentationName), logger),
		tracer:       otel.Tracer(instrumentationName),
	}
}

func newPageBackOff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Minute
	return bo
}

// Start resyncs every active integration once, then again on each tick until ctx is done.
func (s *Syncer) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.logger.Info("Periodic resync disabled")
		return
	}
	s.logger.Info("Starting syncer", "interval", s.cfg.Interval.String(), "concurrency", concurrency)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runSyncCycle(ctx) // Initial sync

	for {
		select {
		case <-ticker.C:
			s.runSyncCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down", "reason", ctx.Err())
			return
		}
	}
}

// runSyncCycle resyncs all active integrations concurrently.
func (s *Syncer) runSyncCycle(ctx context.Context) {
	s.logger.Info("Starting new sync cycle")
	integrations, err := s.integrations.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list integrations", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, in := range integrations {
		userID := in.UserID
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			_, err := s.Resync(gctx, userID)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Failed to resync integration", "user_id", userID, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("Sync cycle finished with an error", "error", err)
	} else {
		s.logger.Info("Sync cycle finished", "integrations", len(integrations))
	}
}

func (s *Syncer) lockFor(userID int64) *semaphore.Weighted {
	lock, _ := s.locks.LoadOrStore(userID, semaphore.NewWeighted(1))
	return lock.(*semaphore.Weighted)
}

// acquire claims the resync slot of userID. Release drops the registry entry, so
// only identities with a resync in flight hold one.
func (s *Syncer) acquire(userID int64) (release func(), ok bool) {
	for {
		lock := s.lockFor(userID)
		if !lock.TryAcquire(1) {
			return nil, false
		}
		// The previous holder may have dropped this entry after we loaded it.
		if cur, loaded := s.locks.Load(userID); loaded && cur == lock {
			return func() {
				s.locks.CompareAndDelete(userID, lock)
				lock.Release(1)
			}, true
		}
		lock.Release(1)
	}
}

// Resync replaces every mirrored document of userID with a fresh snapshot from GitHub
// and returns the number of documents written per entity type.
//
// A missing integration or credential is returned as is. Any later failure aborts the
// run with a *SyncFailedError and leaves the documents written so far in place; the
// next run clears them before inserting again.
func (s *Syncer) Resync(ctx context.Context, userID int64) (model.SyncStats, error) {
	release, ok := s.acquire(userID)
	if !ok {
		return model.SyncStats{}, custom_errors.ErrSyncInProgress
	}
	defer release()

	ctx, span := s.tracer.Start(ctx, "resync", trace.WithAttributes(attribute.Int64("user_id", userID)))
	defer span.End()

	started := s.now()
	logger := s.logger.With("user_id", userID)

	token, err := s.integrations.Credential(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.recordRun(ctx, "rejected", 0)
		return model.SyncStats{}, err
	}

	run := &syncRun{
		syncer: s,
		userID: userID,
		logger: logger,
	}
	stats, err := run.execute(ctx, token)
	elapsed := s.now().Sub(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.recordRun(ctx, "failed", elapsed)
		logger.Error("Resync failed", "error", err, "partial_stats", stats)
		return model.SyncStats{}, err
	}

	s.metrics.recordRun(ctx, "succeeded", elapsed)
	logger.Info("Resync completed", "duration", elapsed.String(), "stats", stats)
	return stats, nil
}

// syncRun holds the state of one Resync invocation.
type syncRun struct {
	syncer *Syncer
	client Upstream
	userID int64
	logger *slog.Logger

	mu    sync.Mutex
	stats model.SyncStats
}

func (r *syncRun) execute(ctx context.Context, token string) (model.SyncStats, error) {
	client, err := r.syncer.newClient(token)
	if err != nil {
		return model.SyncStats{}, r.fail("client", err)
	}
	r.client = client

	if err := r.stage(ctx, "clear", r.clear); err != nil {
		return r.snapshot(), err
	}

	var orgRepos []*gh.Repository
	err = r.stage(ctx, "organizations", func(ctx context.Context) error {
		var err error
		orgRepos, err = r.syncOrganizations(ctx)
		return err
	})
	if err != nil {
		return r.snapshot(), err
	}

	var repos []*gh.Repository
	err = r.stage(ctx, "repositories", func(ctx context.Context) error {
		var err error
		repos, err = r.syncRepositories(ctx, orgRepos)
		return err
	})
	if err != nil {
		return r.snapshot(), err
	}

	err = r.stage(ctx, "repository contents", func(ctx context.Context) error {
		return r.syncRepositoryContents(ctx, repos)
	})
	if err != nil {
		return r.snapshot(), err
	}

	err = r.stage(ctx, "finalize", func(ctx context.Context) error {
		return r.syncer.integrations.MarkSynced(ctx, r.userID, r.syncer.now())
	})
	if err != nil {
		return r.snapshot(), err
	}

	return r.snapshot(), nil
}

// stage runs fn in its own span and converts its error into a SyncFailedError.
func (r *syncRun) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := r.syncer.tracer.Start(ctx, "resync."+name)
	defer span.End()

	r.logger.Debug("Starting resync stage", "stage", name)
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r.fail(name, err)
	}
	return nil
}

func (r *syncRun) fail(stage string, err error) error {
	return &custom_errors.SyncFailedError{UserID: r.userID, Stage: stage, Err: err}
}

func (r *syncRun) snapshot() model.SyncStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *syncRun) count(ctx context.Context, entity string, n int, field func(*model.SyncStats) *int) {
	r.mu.Lock()
	*field(&r.stats) += n
	r.mu.Unlock()
	r.syncer.metrics.recordDocuments(ctx, entity, n)
}

func (r *syncRun) pageRequest(page int) github.PageRequest {
	return github.PageRequest{Page: page, PerPage: r.syncer.cfg.PageSize}
}

// clear removes every document previously mirrored for this identity.
func (r *syncRun) clear(ctx context.Context) error {
	removed, err := integration.ClearEntities(ctx, r.syncer.store, r.userID)
	if err != nil {
		return err
	}
	r.logger.Info("Cleared previous snapshot", "documents_removed", removed)
	return nil
}

// syncOrganizations stores the user's organizations and their members, and
// returns the repositories of every organization.
func (r *syncRun) syncOrganizations(ctx context.Context) ([]*gh.Repository, error) {
	orgPage, err := fetchPage(ctx, r, "list user orgs", r.pageRequest(1), r.client.ListUserOrgs)
	if err != nil {
		return nil, err
	}
	orgs := orgPage.Items
	r.logger.Info("Fetched organizations", "count", len(orgs))

	docs, err := reshapeAll(orgs, func(o *gh.Organization) (model.Document, error) {
		return orgDocument(o, r.userID)
	})
	if err != nil {
		return nil, err
	}
	if err := r.insert(ctx, model.CollectionOrganizations, docs); err != nil {
		return nil, err
	}
	r.count(ctx, "organizations", len(docs), func(s *model.SyncStats) *int { return &s.Organizations })

	var memberDocs []model.Document
	var repos []*gh.Repository
	for _, org := range orgs {
		login := org.GetLogin()
		orgLogger := r.logger.With("organization", login)

		memberPage, err := fetchPage(ctx, r, "list org members", r.pageRequest(1),
			func(ctx context.Context, req github.PageRequest) (github.Page[*gh.User], error) {
				return r.client.ListOrgMembers(ctx, login, req)
			})
		if github.IsUnavailable(err) {
			orgLogger.Warn("Organization members unavailable, skipping", "error", err)
		} else if err != nil {
			return nil, err
		}
		for _, member := range memberPage.Items {
			doc, err := memberDocument(member, login, r.userID)
			if err != nil {
				return nil, err
			}
			memberDocs = append(memberDocs, doc)
		}

		orgRepos, err := fetchAll(ctx, r, "list org repos",
			func(ctx context.Context, req github.PageRequest) (github.Page[*gh.Repository], error) {
				return r.client.ListOrgRepos(ctx, login, req)
			})
		if github.IsUnavailable(err) {
			orgLogger.Warn("Organization repositories unavailable, keeping what was fetched", "error", err)
		} else if err != nil {
			return nil, err
		}
		repos = append(repos, orgRepos...)
	}

	if err := r.insert(ctx, model.CollectionUsers, memberDocs); err != nil {
		return nil, err
	}
	r.count(ctx, "members", len(memberDocs), func(s *model.SyncStats) *int { return &s.Members })
	return repos, nil
}

// syncRepositories stores the union of organization and user repositories and returns it.
func (r *syncRun) syncRepositories(ctx context.Context, orgRepos []*gh.Repository) ([]*gh.Repository, error) {
	userRepos, err := fetchAll(ctx, r, "list user repos", r.client.ListUserRepos)
	if err != nil {
		return nil, err
	}
	repos := unionRepos(orgRepos, userRepos)
	r.logger.Info("Fetched repositories", "organization_repos", len(orgRepos), "user_repos", len(userRepos), "total", len(repos))

	docs, err := reshapeAll(repos, func(repo *gh.Repository) (model.Document, error) {
		return repoDocument(repo, r.userID)
	})
	if err != nil {
		return nil, err
	}
	if err := r.insert(ctx, model.CollectionRepos, docs); err != nil {
		return nil, err
	}
	r.count(ctx, "repositories", len(docs), func(s *model.SyncStats) *int { return &s.Repositories })
	return repos, nil
}

// syncRepositoryContents mirrors commits, pulls, issues and issue events of every repository.
// Repositories run through a bounded pool; the four streams of one repository stay sequential.
func (r *syncRun) syncRepositoryContents(ctx context.Context, repos []*gh.Repository) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.syncer.cfg.RepoConcurrency)

	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return r.syncRepository(gctx, repo)
		})
	}
	return g.Wait()
}

func (r *syncRun) syncRepository(ctx context.Context, repo *gh.Repository) error {
	owner, name, fullName := repo.GetOwner().GetLogin(), repo.GetName(), repoFullName(repo)
	logger := r.logger.With("repo", fullName)
	logger.Debug("Syncing repository contents")

	commits, err := collect(ctx, r, logger, "list commits",
		func(ctx context.Context, req github.PageRequest) (github.Page[*gh.RepositoryCommit], error) {
			return r.client.ListCommits(ctx, owner, name, req)
		})
	if err != nil {
		return fmt.Errorf("%s commits: %w", fullName, err)
	}
	if err := storeRepoChildren(ctx, r, model.CollectionCommits, fullName, commits); err != nil {
		return err
	}
	r.count(ctx, "commits", len(commits), func(s *model.SyncStats) *int { return &s.Commits })

	pulls, err := collect(ctx, r, logger, "list pulls",
		func(ctx context.Context, req github.PageRequest) (github.Page[*gh.PullRequest], error) {
			return r.client.ListPulls(ctx, owner, name, req)
		})
	if err != nil {
		return fmt.Errorf("%s pulls: %w", fullName, err)
	}
	if err := storeRepoChildren(ctx, r, model.CollectionPulls, fullName, pulls); err != nil {
		return err
	}
	r.count(ctx, "pulls", len(pulls), func(s *model.SyncStats) *int { return &s.Pulls })

	issues, err := collect(ctx, r, logger, "list issues",
		func(ctx context.Context, req github.PageRequest) (github.Page[*gh.Issue], error) {
			return r.client.ListIssues(ctx, owner, name, req)
		})
	if err != nil {
		return fmt.Errorf("%s issues: %w", fullName, err)
	}
	issues = withoutPullRequests(issues)
	if err := storeRepoChildren(ctx, r, model.CollectionIssues, fullName, issues); err != nil {
		return err
	}
	r.count(ctx, "issues", len(issues), func(s *model.SyncStats) *int { return &s.Issues })

	events, err := collect(ctx, r, logger, "list issue events",
		func(ctx context.Context, req github.PageRequest) (github.Page[*gh.IssueEvent], error) {
			return r.client.ListIssueEvents(ctx, owner, name, req)
		})
	if err != nil {
		return fmt.Errorf("%s issue events: %w", fullName, err)
	}
	if err := storeRepoChildren(ctx, r, model.CollectionChangelogs, fullName, events); err != nil {
		return err
	}
	r.count(ctx, "changelogs", len(events), func(s *model.SyncStats) *int { return &s.Changelogs })

	logger.Debug("Repository synced", "commits", len(commits), "pulls", len(pulls), "issues", len(issues), "events", len(events))
	return nil
}

func (r *syncRun) insert(ctx context.Context, collection string, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := r.syncer.store.InsertMany(ctx, collection, docs); err != nil {
		return fmt.Errorf("store %s: %w", collection, err)
	}
	return nil
}

func storeRepoChildren[T any](ctx context.Context, r *syncRun, collection, fullName string, items []T) error {
	docs, err := reshapeAll(items, func(item T) (model.Document, error) {
		return repoChildDocument(item, fullName, r.userID)
	})
	if err != nil {
		return err
	}
	return r.insert(ctx, collection, docs)
}

// collect reads a repository stream to its end. A stream GitHub refuses for this
// repository (empty repository, disabled issues, no access) ends with what was read.
func collect[T any](ctx context.Context, r *syncRun, logger *slog.Logger, op string,
	fetch func(context.Context, github.PageRequest) (github.Page[T], error)) ([]T, error) {
	items, err := fetchAll(ctx, r, op, fetch)
	if github.IsUnavailable(err) {
		logger.Warn("Repository resource unavailable, skipping", "op", op, "fetched", len(items), "error", err)
		return items, nil
	}
	return items, err
}

// fetchAll requests pages 1, 2, 3... until a page comes back shorter than the page size.
// On error it returns the items read so far together with the error.
func fetchAll[T any](ctx context.Context, r *syncRun, op string,
	fetch func(context.Context, github.PageRequest) (github.Page[T], error)) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		p, err := fetchPage(ctx, r, op, r.pageRequest(page), fetch)
		if err != nil {
			return all, err
		}
		all = append(all, p.Items...)
		if p.EndOfStream() {
			return all, nil
		}
	}
}

// fetchPage requests one page, retrying transient failures with exponential backoff.
func fetchPage[T any](ctx context.Context, r *syncRun, op string, req github.PageRequest,
	fetch func(context.Context, github.PageRequest) (github.Page[T], error)) (github.Page[T], error) {
	var page github.Page[T]
	bo := backoff.WithContext(backoff.WithMaxRetries(r.syncer.newBackOff(), uint64(r.syncer.cfg.MaxRetries)), ctx)

	err := backoff.RetryNotify(func() error {
		var err error
		page, err = fetch(ctx, req)
		if err != nil && !github.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, wait time.Duration) {
		r.logger.Warn("Transient upstream failure, retrying page", "op", op, "page", req.Page, "retry_in", wait.String(), "error", err)
	})
	if err != nil {
		return github.Page[T]{Request: req}, err
	}
	return page, nil
}
