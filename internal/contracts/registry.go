package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/spf13/afero"
)

// ErrArtifactNotFound is returned when no registry knows the contract
var ErrArtifactNotFound = errors.New("contract artifact not found")

// Registry resolves a contract name to its ABI
type Registry interface {
	ABI(name string) (abi.ABI, error)
}

// artifact is the subset of a Hardhat (zksync) build artifact we need
type artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
}

// ArtifactRegistry reads ABIs from compiled build artifacts, laid out as
// <root>/**/<Name>.sol/<Name>.json
type ArtifactRegistry struct {
	fs   afero.Fs
	root string

	mu    sync.Mutex
	cache map[string]abi.ABI
}

// NewArtifactRegistry creates a registry rooted at dir on the given filesystem
func NewArtifactRegistry(fsys afero.Fs, dir string) *ArtifactRegistry {
	return &ArtifactRegistry{
		fs:    fsys,
		root:  dir,
		cache: make(map[string]abi.ABI),
	}
}

// ABI returns the ABI of the named contract
func (r *ArtifactRegistry) ABI(name string) (abi.ABI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if parsed, ok := r.cache[name]; ok {
		return parsed, nil
	}

	path, err := r.find(name)
	if err != nil {
		return abi.ABI{}, err
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return abi.ABI{}, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	if len(art.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("artifact %s has no abi", path)
	}

	parsed, err := abi.JSON(strings.NewReader(string(art.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI of %s: %w", name, err)
	}

	r.cache[name] = parsed
	return parsed, nil
}

func (r *ArtifactRegistry) find(name string) (string, error) {
	want := name + ".json"
	var found string

	err := afero.Walk(r.fs, r.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Base(path) == want {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return "", fmt.Errorf("failed to scan artifacts in %s: %w", r.root, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, r.root)
	}
	return found, nil
}

// BuiltinRegistry serves the ABIs compiled into the binary
type BuiltinRegistry struct {
	sources map[string]string
}

// NewBuiltinRegistry returns a registry with the MyERC20, MyPaymaster and Greeter ABIs
func NewBuiltinRegistry() *BuiltinRegistry {
	return &BuiltinRegistry{
		sources: map[string]string{
			TokenContract:     erc20ABI,
			PaymasterContract: paymasterABI,
			GreeterContract:   greeterABI,
		},
	}
}

// ABI returns the ABI of the named contract
func (r *BuiltinRegistry) ABI(name string) (abi.ABI, error) {
	src, ok := r.sources[name]
	if !ok {
		return abi.ABI{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	return abi.JSON(strings.NewReader(src))
}

// Chain tries each registry in order and returns the first ABI found
type Chain []Registry

// ABI returns the ABI of the named contract
func (c Chain) ABI(name string) (abi.ABI, error) {
	for _, r := range c {
		parsed, err := r.ABI(name)
		if err == nil {
			return parsed, nil
		}
		if !errors.Is(err, ErrArtifactNotFound) {
			return abi.ABI{}, err
		}
	}
	return abi.ABI{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
}
