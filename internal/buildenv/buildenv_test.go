package buildenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/terrpan/lorrigen/internal/builderr"
	"github.com/terrpan/lorrigen/internal/buildmeta"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func mapLookup(vars map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func validVars() map[string]string {
	return map[string]string{
		RevCount:       "142",
		RuntimeClosure: "/nix/store/abc-closure",
		VersionMajor:   "1",
		VersionMinor:   "5",
	}
}

// ---------------------------------------------------------------------------
// Test suite
// ---------------------------------------------------------------------------

type ReaderSuite struct {
	suite.Suite
}

func TestReaderSuite(t *testing.T) {
	suite.Run(t, new(ReaderSuite))
}

func (s *ReaderSuite) TestRead_Valid() {
	m, err := NewReader(mapLookup(validVars()), "").Read()
	require.NoError(s.T(), err)

	assert.Equal(s.T(), buildmeta.Metadata{
		VersionMajor:   1,
		VersionMinor:   5,
		RevisionCount:  142,
		RuntimeClosure: "/nix/store/abc-closure",
	}, m)
}

func (s *ReaderSuite) TestRead_ZeroRevision() {
	vars := validVars()
	vars[RevCount] = "0"

	m, err := NewReader(mapLookup(vars), "").Read()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint64(0), m.RevisionCount)
}

// ---------------------------------------------------------------------------
// Missing variables
// ---------------------------------------------------------------------------

func (s *ReaderSuite) TestRead_MissingEachVariable() {
	tests := []struct {
		name string
		hint string
	}{
		{RevCount, ShellHint},
		{RuntimeClosure, ShellHint},
		{VersionMajor, "project.toml"},
		{VersionMinor, "project.toml"},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			vars := validVars()
			delete(vars, tc.name)

			_, err := NewReader(mapLookup(vars), "").Read()
			require.Error(s.T(), err)
			assert.Equal(s.T(), builderr.MissingConfiguration, builderr.KindOf(err))
			assert.Contains(s.T(), err.Error(), tc.name)
			assert.Contains(s.T(), err.Error(), tc.hint)
		})
	}
}

func (s *ReaderSuite) TestRead_ManifestHintUsesPath() {
	vars := validVars()
	delete(vars, VersionMajor)

	_, err := NewReader(mapLookup(vars), "nix/project.toml").Read()
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "set [package].version in nix/project.toml")
}

// ---------------------------------------------------------------------------
// Malformed variables
// ---------------------------------------------------------------------------

func (s *ReaderSuite) TestRead_MalformedRevisionCount() {
	values := []string{"", "abc", "-1", "1.5", " 142", "142 ", "0x10", "1e3", "99999999999999999999999"}

	for _, v := range values {
		s.Run(v, func() {
			vars := validVars()
			vars[RevCount] = v

			_, err := NewReader(mapLookup(vars), "").Read()
			require.Error(s.T(), err)
			assert.Equal(s.T(), builderr.MalformedConfiguration, builderr.KindOf(err))
			assert.Contains(s.T(), err.Error(), RevCount)
		})
	}
}

func (s *ReaderSuite) TestRead_MalformedVersion() {
	vars := validVars()
	vars[VersionMinor] = "five"

	_, err := NewReader(mapLookup(vars), "").Read()
	require.Error(s.T(), err)
	assert.Equal(s.T(), builderr.MalformedConfiguration, builderr.KindOf(err))
	assert.Contains(s.T(), err.Error(), VersionMinor)
	assert.Contains(s.T(), err.Error(), `"five"`)
}

func (s *ReaderSuite) TestRead_EmptyClosure() {
	vars := validVars()
	vars[RuntimeClosure] = ""

	_, err := NewReader(mapLookup(vars), "").Read()
	require.Error(s.T(), err)
	assert.Equal(s.T(), builderr.MalformedConfiguration, builderr.KindOf(err))
}

func (s *ReaderSuite) TestRead_ClosureNotValidated() {
	vars := validVars()
	vars[RuntimeClosure] = "relative/and/nonexistent"

	m, err := NewReader(mapLookup(vars), "").Read()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "relative/and/nonexistent", m.RuntimeClosure)
}

func (s *ReaderSuite) TestRead_FirstFailureWins() {
	_, err := NewReader(mapLookup(map[string]string{}), "").Read()
	require.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), RevCount)
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

func TestChain_FirstHitWins(t *testing.T) {
	process := mapLookup(map[string]string{VersionMajor: "9"})
	host := mapLookup(map[string]string{VersionMajor: "1", VersionMinor: "5"})

	l := Chain(process, nil, host)

	v, ok := l(VersionMajor)
	assert.True(t, ok)
	assert.Equal(t, "9", v)

	v, ok = l(VersionMinor)
	assert.True(t, ok)
	assert.Equal(t, "5", v)

	_, ok = l(RevCount)
	assert.False(t, ok)
}
