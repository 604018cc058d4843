package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfileFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestRepositoryInstallAndList(t *testing.T) {
	repo, err := OpenRepository(filepath.Join(t.TempDir(), "profiles"))
	require.NoError(t, err)

	pack, err := repo.Install(writeProfileFile(t, "team.yaml", yamlProfiles))
	require.NoError(t, err)
	assert.Equal(t, "team", pack.Name)
	assert.Equal(t, []string{"quiet"}, pack.Profiles)

	_, err = repo.Install(writeProfileFile(t, "ops.json", jsonProfiles))
	require.NoError(t, err)

	packs, err := repo.ListInstalled()
	require.NoError(t, err)
	require.Len(t, packs, 2)
	assert.Equal(t, "ops", packs[0].Name)
	assert.Equal(t, "team", packs[1].Name)

	set, err := repo.Profiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"basic", "development", "quiet", "security", "strict"}, set.Names())
}

func TestRepositoryReinstallReplaces(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	require.NoError(t, err)
	_, err = repo.Install(writeProfileFile(t, "team.yaml", yamlProfiles))
	require.NoError(t, err)
	_, err = repo.Install(writeProfileFile(t, "team.toml", tomlProfiles))
	require.NoError(t, err)

	packs, err := repo.ListInstalled()
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.Equal(t, ".toml", filepath.Ext(packs[0].Path))
}

func TestRepositoryRejectsInvalidFiles(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Install(writeProfileFile(t, "team.ini", yamlProfiles))
	assert.ErrorIs(t, err, ErrUnknownProfileFormat)

	_, err = repo.Install(writeProfileFile(t, "bad.json", `{"profiles":[{"name":""}]}`))
	assert.ErrorIs(t, err, ErrInvalidProfile)

	packs, err := repo.ListInstalled()
	require.NoError(t, err)
	assert.Empty(t, packs)
}

func TestRepositoryDefaultProfile(t *testing.T) {
	repo, err := OpenRepository(t.TempDir())
	require.NoError(t, err)

	_, ok, err := repo.DefaultProfile()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, repo.SetDefaultProfile("quiet"))
	_, err = repo.Install(writeProfileFile(t, "team.yaml", yamlProfiles))
	require.NoError(t, err)
	require.NoError(t, repo.SetDefaultProfile("quiet"))

	name, ok, err := repo.DefaultProfile()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "quiet", name)

	require.NoError(t, repo.Remove("team"))
	_, ok, err = repo.DefaultProfile()
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.Remove("team"), os.ErrNotExist)
}

func TestValidatePathComponent(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", "../x"} {
		assert.Error(t, validatePathComponent(bad), bad)
	}
	assert.NoError(t, validatePathComponent("team-profiles_v2"))
}
