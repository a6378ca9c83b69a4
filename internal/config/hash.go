package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest is the on-disk .checksums file written by `config lock`.
type ChecksumManifest struct {
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// IntegrityResult captures the outcome of a config integrity check.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

func checksumPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".checksums")
}

// Lock computes the BLAKE3 hash of the config file and writes the .checksums
// manifest next to it, authorizing the current state.
func Lock(configPath string) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return err
	}

	manifest := ChecksumManifest{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes: map[string]string{
			filepath.Base(absPath): hash,
		},
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(checksumPath(absPath), data, 0o644); err != nil {
		return fmt.Errorf("failed to write checksums: %w", err)
	}
	return nil
}

// VerifyIntegrity checks the config file against the .checksums manifest.
// A missing manifest is a warning (integrity not yet enabled); a mismatch is
// a hard error.
func VerifyIntegrity(configPath string) (*IntegrityResult, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	result := &IntegrityResult{Passed: true}

	data, err := os.ReadFile(checksumPath(absPath))
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no .checksums manifest found at %s; run 'easyconnect config lock' to enable integrity verification", checksumPath(absPath)))
		return result, nil
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("invalid .checksums manifest: %v", err))
		return result, nil
	}

	expected, ok := manifest.Hashes[filepath.Base(absPath)]
	if !ok {
		result.Passed = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("file %s not in .checksums manifest; run 'easyconnect config lock'", filepath.Base(absPath)))
		return result, nil
	}

	if err := VerifyFileHash(absPath, expected); err != nil {
		result.Passed = false
		result.Errors = append(result.Errors, err.Error())
	}

	return result, nil
}
