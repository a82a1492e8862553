package buildsys

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// StampFileName is the stamp written next to the generated constants.
const StampFileName = ".lorrigen.stamp"

const (
	envKeyPrefix  = "ENV_"
	fileKeyPrefix = "FILE_"
	// unsetValue marks a variable that was absent when the stamp was taken.
	unsetValue = "<unset>"
	// missingFile marks a trigger file that could not be read.
	missingFile = "missing"
)

// Snapshot evaluates ds against the current environment and filesystem.
// Keys are stable so two snapshots of unchanged inputs are equal.
func Snapshot(ds []Directive, lookup func(string) (string, bool)) map[string]string {
	snap := make(map[string]string, len(ds))
	for _, d := range ds {
		switch d.Kind {
		case RerunIfEnvChanged:
			v, ok := lookup(d.Target)
			if !ok {
				v = unsetValue
			}
			snap[envKeyPrefix+d.Target] = v
		case RerunIfChanged:
			snap[fileKey(d.Target)] = fileDigest(d.Target)
		}
	}
	return snap
}

// WriteStamp records the trigger inputs of a successful run at path.
func WriteStamp(path string, ds []Directive, lookup func(string) (string, bool)) error {
	if err := godotenv.Write(Snapshot(ds, lookup), path); err != nil {
		return fmt.Errorf("writing stamp %s: %w", path, err)
	}
	return nil
}

// Stale compares the stamp at path with the current inputs and returns the
// reasons a rerun is required. An empty result means up to date.
func Stale(path string, ds []Directive, lookup func(string) (string, bool)) ([]string, error) {
	recorded, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{"no stamp at " + path}, nil
		}
		return nil, fmt.Errorf("reading stamp %s: %w", path, err)
	}

	current := Snapshot(ds, lookup)
	var reasons []string
	for _, key := range sortedKeys(current) {
		old, ok := recorded[key]
		switch {
		case !ok:
			reasons = append(reasons, "new trigger "+describe(key, ds))
		case old != current[key]:
			reasons = append(reasons, describe(key, ds)+" changed")
		}
	}
	for _, key := range sortedKeys(recorded) {
		if _, ok := current[key]; !ok {
			reasons = append(reasons, "trigger "+key+" removed")
		}
	}
	return reasons, nil
}

func fileKey(path string) string {
	var b strings.Builder
	b.WriteString(fileKeyPrefix)
	for _, r := range filepath.ToSlash(path) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func fileDigest(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return missingFile
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// describe maps a snapshot key back to the directive target for messages.
func describe(key string, ds []Directive) string {
	for _, d := range ds {
		switch d.Kind {
		case RerunIfEnvChanged:
			if key == envKeyPrefix+d.Target {
				return "env " + d.Target
			}
		case RerunIfChanged:
			if key == fileKey(d.Target) {
				return "file " + d.Target
			}
		}
	}
	return key
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
