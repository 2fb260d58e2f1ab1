package links

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storkeep/storkeep/pkg/storkeep/config"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		AppRoot:     filepath.Join(root, "app"),
		StorageRoot: filepath.Join(root, "storage"),
		BackupRoot:  filepath.Join(root, "backups"),
	}
	cfg.Links.VerifyTargets = true
	cfg.Links.CreateMissingTargets = true
	cfg.Links.DirectoryMode = "0755"
	cfg.Links.Subdirs = []string{"models", "cache"}
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	return New(cfg, logging.Get("links"))
}

func TestCreateThenVerifyAllOK(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	result, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Failed)
	assert.False(t, result.Partial())

	for _, entry := range m.Verify(context.Background()) {
		assert.Equal(t, StateOK, entry.State, "link %s", entry.Link)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	_, err := m.Create(context.Background())
	require.NoError(t, err)

	result, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Len(t, result.Skipped, 2)
	assert.Empty(t, result.Failed)
}

func TestCreateReportsConflict(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	// Occupy one link path with a symlink to somewhere else.
	other := filepath.Join(cfg.StorageRoot, "other")
	require.NoError(t, os.MkdirAll(other, 0o755))
	link := filepath.Join(cfg.AppRoot, "models")
	require.NoError(t, os.MkdirAll(cfg.AppRoot, 0o755))
	require.NoError(t, os.Symlink(other, link))

	result, err := m.Create(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.True(t, result.Partial())

	var conflict *ConflictError
	require.ErrorAs(t, result.Failed[0].Err, &conflict)
	assert.Equal(t, link, conflict.Path)
	assert.Equal(t, other, conflict.Existing)

	// The other pair still went through.
	assert.Len(t, result.Created, 1)
}

func TestCreateForceRecreateReplacesWrongLink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Links.ForceRecreate = true
	m := newTestManager(t, cfg)

	other := filepath.Join(cfg.StorageRoot, "other")
	require.NoError(t, os.MkdirAll(other, 0o755))
	link := filepath.Join(cfg.AppRoot, "models")
	require.NoError(t, os.MkdirAll(cfg.AppRoot, 0o755))
	require.NoError(t, os.Symlink(other, link))

	result, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	assert.Len(t, result.Created, 2)

	actual, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.StorageRoot, "models"), actual)
}

func TestCreateForceRecreateReplacesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Links.ForceRecreate = true
	m := newTestManager(t, cfg)

	link := filepath.Join(cfg.AppRoot, "models")
	require.NoError(t, os.MkdirAll(cfg.AppRoot, 0o755))
	require.NoError(t, os.WriteFile(link, []byte("stale"), 0o644))

	result, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Failed)

	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
}

func TestCreateWithoutMissingTargets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Links.CreateMissingTargets = false
	m := newTestManager(t, cfg)

	result, err := m.Create(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Failed, 2)

	var missing *MissingTargetError
	require.ErrorAs(t, result.Failed[0].Err, &missing)
	assert.Equal(t, StateMissingTarget, result.Failed[0].Entry.State)
}

func TestCreateAppliesDirectoryMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Links.DirectoryMode = "0750"
	m := newTestManager(t, cfg)

	_, err := m.Create(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(cfg.StorageRoot, "models"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
}

func TestCreateCancelledContext(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := m.Create(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Created)
}

func TestVerifyClassifiesStates(t *testing.T) {
	root := t.TempDir()
	target := func(name string) string { return filepath.Join(root, "targets", name) }
	link := func(name string) string { return filepath.Join(root, "links", name) }

	cfg := testConfig(t)
	cfg.Links.Pairs = []config.LinkPair{
		{Link: link("absent"), Target: target("absent")},
		{Link: link("broken"), Target: target("broken")},
		{Link: link("wrong"), Target: target("wrong")},
		{Link: link("occupied"), Target: target("occupied")},
		{Link: link("orphan"), Target: target("orphan")},
		{Link: link("good"), Target: target("good")},
	}

	require.NoError(t, os.MkdirAll(filepath.Join(root, "links"), 0o755))
	for _, name := range []string{"absent", "wrong", "occupied", "good"} {
		require.NoError(t, os.MkdirAll(target(name), 0o755))
	}

	// broken: link points at the configured target, which does not exist.
	require.NoError(t, os.Symlink(target("broken"), link("broken")))
	// wrong: link points somewhere else entirely.
	elsewhere := filepath.Join(root, "elsewhere")
	require.NoError(t, os.MkdirAll(elsewhere, 0o755))
	require.NoError(t, os.Symlink(elsewhere, link("wrong")))
	// occupied: a regular file sits at the link path.
	require.NoError(t, os.WriteFile(link("occupied"), []byte("x"), 0o644))
	// good: correct symlink with existing target.
	require.NoError(t, os.Symlink(target("good"), link("good")))

	m := newTestManager(t, cfg)
	entries := m.Verify(context.Background())
	require.Len(t, entries, 6)

	byLink := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byLink[e.Link] = e
	}

	assert.Equal(t, StateAbsent, byLink[link("absent")].State)
	assert.Equal(t, StateBroken, byLink[link("broken")].State)
	assert.Equal(t, StateWrongTarget, byLink[link("wrong")].State)
	assert.Equal(t, elsewhere, byLink[link("wrong")].Detail)
	assert.Equal(t, StateWrongTarget, byLink[link("occupied")].State)
	assert.Contains(t, byLink[link("occupied")].Detail, "not a symlink")
	assert.Equal(t, StateMissingTarget, byLink[link("orphan")].State)
	assert.Equal(t, StateOK, byLink[link("good")].State)
	assert.True(t, byLink[link("good")].State.Healthy())
}

func TestRepairFixesDegradedLinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Links.Subdirs = []string{"models", "cache", "datasets"}
	m := newTestManager(t, cfg)

	_, err := m.Create(context.Background())
	require.NoError(t, err)

	// Degrade two links; leave datasets healthy.
	require.NoError(t, os.Remove(filepath.Join(cfg.AppRoot, "models")))
	require.NoError(t, os.Remove(filepath.Join(cfg.AppRoot, "cache")))
	elsewhere := filepath.Join(cfg.StorageRoot, "elsewhere")
	require.NoError(t, os.MkdirAll(elsewhere, 0o755))
	require.NoError(t, os.Symlink(elsewhere, filepath.Join(cfg.AppRoot, "cache")))

	result, err := m.Repair(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Repaired, 2)
	assert.Len(t, result.Healthy, 1)
	assert.Empty(t, result.Failed)
	assert.Equal(t, filepath.Join(cfg.AppRoot, "datasets"), result.Healthy[0].Link)

	for _, entry := range m.Verify(context.Background()) {
		assert.Equal(t, StateOK, entry.State, "link %s", entry.Link)
	}
}

func TestRepairRefusesMissingTarget(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	_, err := m.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(cfg.StorageRoot, "models")))

	result, err := m.Repair(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.True(t, result.Partial())

	var missing *MissingTargetError
	require.ErrorAs(t, result.Failed[0].Err, &missing)

	// The link itself is untouched: still pointing at the gone target.
	actual, err := os.Readlink(filepath.Join(cfg.AppRoot, "models"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.StorageRoot, "models"), actual)
}

func TestRepairRecreatesDanglingWhenUnverified(t *testing.T) {
	cfg := testConfig(t)
	cfg.Links.VerifyTargets = false
	m := newTestManager(t, cfg)

	_, err := m.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(cfg.StorageRoot, "models")))

	result, err := m.Repair(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Repaired, 1)
	assert.Empty(t, result.Failed)
}

func TestRollbackRemovesCreatedLinks(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	result, err := m.Create(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Created, 2)

	require.NoError(t, m.Rollback(result))

	for _, entry := range result.Created {
		_, err := os.Lstat(entry.Link)
		assert.True(t, os.IsNotExist(err), "link %s should be gone", entry.Link)
		// Targets survive rollback.
		assert.DirExists(t, entry.Target)
	}
}

func TestRollbackSkipsReplacedPaths(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	result, err := m.Create(context.Background())
	require.NoError(t, err)

	// Something replaced one link with a real file since creation.
	replaced := result.Created[0].Link
	require.NoError(t, os.Remove(replaced))
	require.NoError(t, os.WriteFile(replaced, []byte("data"), 0o644))

	require.NoError(t, m.Rollback(result))
	assert.FileExists(t, replaced)
}

func TestRollbackSkipsPreexistingLinks(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	first, err := m.Create(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Created, 2)

	second, err := m.Create(context.Background())
	require.NoError(t, err)
	require.Empty(t, second.Created)

	// Rolling back the no-op invocation removes nothing.
	require.NoError(t, m.Rollback(second))
	for _, entry := range first.Created {
		info, err := os.Lstat(entry.Link)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSymlink)
	}
}

func TestVerifyPrereqsSharedParent(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	// None of the roots exist yet; their shared parent does and is writable.
	report := m.VerifyPrereqs(context.Background())
	assert.True(t, report.OK)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, filepath.Dir(cfg.AppRoot), report.Checks[0].Path)
	assert.True(t, report.Checks[0].Writable)
	assert.Empty(t, report.Problems())
}

func TestVerifyPrereqsExistingRoots(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	_, err := m.CreateDirs(context.Background())
	require.NoError(t, err)

	report := m.VerifyPrereqs(context.Background())
	assert.True(t, report.OK)
	assert.Len(t, report.Checks, 3)
	for _, check := range report.Checks {
		assert.True(t, check.Exists)
		assert.True(t, check.IsDir)
		assert.True(t, check.Writable)
	}
}

func TestVerifyPrereqsMissingMount(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageRoot = filepath.Join(cfg.StorageRoot, "not", "mounted", "storage")
	m := newTestManager(t, cfg)

	report := m.VerifyPrereqs(context.Background())
	assert.False(t, report.OK)

	problems := report.Problems()
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "does not exist")
}

func TestCreateDirs(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	report, err := m.CreateDirs(context.Background())
	require.NoError(t, err)
	// Three roots plus two link targets.
	assert.Len(t, report.Created, 5)
	assert.Empty(t, report.Existing)
	assert.Empty(t, report.Failed)

	for _, dir := range report.Created {
		assert.DirExists(t, dir)
	}

	again, err := m.CreateDirs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Len(t, again.Existing, 5)
}

func TestCreateDirsReportsNonDirectory(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	require.NoError(t, os.MkdirAll(cfg.StorageRoot, 0o755))
	blocked := filepath.Join(cfg.StorageRoot, "models")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	report, err := m.CreateDirs(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.True(t, report.Partial())
	assert.Contains(t, report.Failed[0].Reason, "not a directory")
	// The file was not destroyed.
	assert.FileExists(t, blocked)
}
