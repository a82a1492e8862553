// Package buildrev holds the build provenance constants of this checkout and
// the lorri interface bindings next to it. Both are regenerated by:
//
//	BUILD_REV_COUNT=$(go run ./cmd/lorrigen revcount) RUN_TIME_CLOSURE=... go generate ./internal/buildrev
package buildrev

//go:generate go run github.com/terrpan/lorrigen/cmd/lorrigen --manifest ../../project.toml --idl ../../idl/com.target.lorri.varlink --source-dir ..
